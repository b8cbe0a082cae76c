package cleanup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/flowctl/pkg/audit"
	"github.com/telekom/flowctl/pkg/flowctl/auth"
	"github.com/telekom/flowctl/pkg/flowctl/client"
	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/flowctl/prompt"
	"github.com/telekom/flowctl/pkg/flowctl/retention"
	"github.com/telekom/flowctl/pkg/metrics"
	"github.com/telekom/flowctl/pkg/system"
)

const (
	sandboxURL    = "https://acme--uat.sandbox.my.salesforce.com"
	sandbox2URL   = "https://acme--dev.sandbox.my.salesforce.com"
	productionURL = "https://acme.my.salesforce.com"
)

type fakeAuth struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []auth.Request
}

func (a *fakeAuth) Authenticate(_ context.Context, req auth.Request) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if err := a.errs[req.InstanceURL]; err != nil {
		return nil, err
	}
	return &auth.Session{
		AccessToken: "token-" + req.InstanceURL,
		InstanceURL: req.InstanceURL,
		TokenType:   "Bearer",
		Identity:    &auth.Identity{Subject: "005", PreferredUsername: "admin@acme.test"},
	}, nil
}

// fakeOrg is an in-memory org. Records are the non-active versions the
// Tooling API would return.
type fakeOrg struct {
	name         string
	sandbox      *bool
	orgErr       error
	queryErr     error
	compositeErr error
	panicOnQuery bool
	records      []retention.VersionRecord

	queries [][]string
	deleted []string
}

func (f *fakeOrg) Organization(context.Context) (*client.Organization, error) {
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	return &client.Organization{Name: f.name, IsSandbox: f.sandbox}, nil
}

func (f *fakeOrg) FlowVersions(_ context.Context, names []string) ([]retention.VersionRecord, error) {
	if f.panicOnQuery {
		panic("unexpected nil record")
	}
	f.queries = append(f.queries, names)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(names) == 0 {
		return f.records, nil
	}
	var out []retention.VersionRecord
	for _, r := range f.records {
		for _, name := range names {
			if r.DeveloperName == name {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeOrg) FlowVersionPath(id string) string {
	return "/services/data/v60.0/tooling/sobjects/Flow/" + id
}

func (f *fakeOrg) ToolingComposite(_ context.Context, req client.CompositeRequest) (*client.CompositeResponse, error) {
	if f.compositeErr != nil {
		return nil, f.compositeErr
	}
	resp := &client.CompositeResponse{}
	for _, sub := range req.Requests {
		f.deleted = append(f.deleted, sub.URL[strings.LastIndex(sub.URL, "/")+1:])
		resp.Responses = append(resp.Responses, client.CompositeSubresponse{
			ReferenceID:    sub.ReferenceID,
			HTTPStatusCode: http.StatusNoContent,
		})
	}
	return resp, nil
}

type memorySink struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (s *memorySink) Write(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) types() []audit.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

func boolPtr(v bool) *bool { return &v }

func sampleRecords() []retention.VersionRecord {
	return []retention.VersionRecord{
		{ID: "301A3", DefinitionID: "300A", VersionNumber: 3, Status: retention.StatusObsolete, DeveloperName: "Flow_A", Label: "Flow A"},
		{ID: "301A2", DefinitionID: "300A", VersionNumber: 2, Status: retention.StatusObsolete, DeveloperName: "Flow_A", Label: "Flow A"},
		{ID: "301A1", DefinitionID: "300A", VersionNumber: 1, Status: retention.StatusInvalidDraft, DeveloperName: "Flow_A", Label: "Flow A"},
		{ID: "301B1", DefinitionID: "300B", VersionNumber: 1, Status: retention.StatusObsolete, DeveloperName: "Flow_B", Label: "Flow B"},
		{ID: "301C2", DefinitionID: "300C", VersionNumber: 2, Status: retention.StatusDraft, DeveloperName: "Flow_C", Label: "Flow C"},
		{ID: "301C1", DefinitionID: "300C", VersionNumber: 1, Status: retention.StatusObsolete, DeveloperName: "Flow_C", Label: "Flow C"},
	}
}

type harness struct {
	runner  *Runner
	auth    *fakeAuth
	orgs    map[string]*fakeOrg
	sink    *memorySink
	metrics *metrics.Recorder
	out     *bytes.Buffer
	planDir string
}

func newHarness(t *testing.T, orgs map[string]*fakeOrg) *harness {
	t.Helper()
	h := &harness{
		auth:    &fakeAuth{errs: map[string]error{}},
		orgs:    orgs,
		sink:    &memorySink{},
		metrics: metrics.New(),
		out:     &bytes.Buffer{},
		planDir: t.TempDir(),
	}
	fixed := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	h.runner = &Runner{
		Auth: h.auth,
		NewClient: func(session *auth.Session) (OrgAPI, error) {
			org, ok := h.orgs[session.InstanceURL]
			if !ok {
				return nil, fmt.Errorf("no fake org for %s", session.InstanceURL)
			}
			return org, nil
		},
		Plans:   &audit.PlanWriter{Dir: h.planDir, Now: func() time.Time { return fixed }},
		Audit:   audit.NewRecorder("run-1", h.sink, nil),
		Metrics: h.metrics,
		Out:     h.out,
		Logger:  system.NewTestLogger(),
		Now:     func() time.Time { return fixed },
	}
	return h
}

func target(instance string, mode Mode) Target {
	return Target{InstanceURL: instance, ClientID: "3MVG9abcdefghijk", Mode: mode, CallbackPort: 8080}
}

func TestRunBatchSkipsProductionOrg(t *testing.T) {
	prod := &fakeOrg{name: "Acme", sandbox: boolPtr(false), records: sampleRecords()}
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	dev := &fakeOrg{name: "Acme DEV", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{productionURL: prod, sandboxURL: uat, sandbox2URL: dev})
	h.runner.AssumeYes = true

	result := h.runner.RunBatch(context.Background(), []Target{
		target(productionURL, ModeAllOld),
		target(sandboxURL, ModeAllOld),
		target(sandbox2URL, ModeAllOld),
	}, BatchOptions{})

	require.Len(t, result.Orgs, 3)
	assert.Equal(t, OutcomeSkipped, result.Orgs[0].Outcome)
	assert.True(t, result.Orgs[0].Production)
	assert.Contains(t, result.Orgs[0].Reason, "auto_confirm_production")
	assert.Empty(t, prod.queries, "skipped org must not be queried")
	assert.Empty(t, prod.deleted)

	for i, org := range []*fakeOrg{uat, dev} {
		res := result.Orgs[i+1]
		assert.Equal(t, OutcomeSuccess, res.Outcome, res.Reason)
		assert.Equal(t, 3, res.Planned)
		assert.Equal(t, 3, res.Deleted())
		assert.ElementsMatch(t, []string{"301A2", "301A1", "301C1"}, org.deleted)
	}
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "run-1", result.RunID)

	assert.NotEqual(t, result.Orgs[1].PlanFile, result.Orgs[2].PlanFile)
	assert.FileExists(t, result.Orgs[1].PlanFile)
	assert.Contains(t, h.out.String(), "Skipped: 1")

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.OrgsTotal.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.OrgsTotal.WithLabelValues("success")), 0)
	assert.Contains(t, h.sink.types(), audit.EventOrgSkipped)
	assert.Contains(t, h.sink.types(), audit.EventOrgProductionDetected)
}

func TestRunBatchAutoConfirmProduction(t *testing.T) {
	prod := &fakeOrg{name: "Acme", sandbox: boolPtr(false), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{productionURL: prod})
	h.runner.AssumeYes = true

	tgt := target(productionURL, ModeAllOld)
	tgt.AutoConfirmProduction = true
	result := h.runner.RunBatch(context.Background(), []Target{tgt}, BatchOptions{})

	require.Len(t, result.Orgs, 1)
	assert.Equal(t, OutcomeSuccess, result.Orgs[0].Outcome)
	assert.Len(t, prod.deleted, 3)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	broken := &fakeOrg{name: "Broken", sandbox: boolPtr(true), panicOnQuery: true}
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandbox2URL: broken, sandboxURL: uat})
	h.auth.errs[productionURL] = &auth.Failure{Kind: auth.FailureTimeout, Message: "no callback received"}
	h.runner.AssumeYes = true

	result := h.runner.RunBatch(context.Background(), []Target{
		target(productionURL, ModeAllOld),
		target(sandbox2URL, ModeAllOld),
		target(sandboxURL, ModeAllOld),
	}, BatchOptions{})

	require.Len(t, result.Orgs, 3)
	assert.Equal(t, OutcomeFailed, result.Orgs[0].Outcome)
	assert.True(t, auth.IsFailure(result.Orgs[0].Err, auth.FailureTimeout))
	assert.Equal(t, OutcomeFailed, result.Orgs[1].Outcome)
	assert.Contains(t, result.Orgs[1].Reason, "internal error")
	assert.Equal(t, OutcomeSuccess, result.Orgs[2].Outcome)
	assert.Len(t, uat.deleted, 3)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Succeeded)

	assert.Len(t, h.auth.calls, 3)
	assert.Contains(t, h.sink.types(), audit.EventAuthFailure)
	assert.Contains(t, h.sink.types(), audit.EventOrgFailed)
}

func TestRunBatchQueryFailure(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), queryErr: errors.New("INVALID_SESSION_ID")}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})

	result := h.runner.RunBatch(context.Background(), []Target{target(sandboxURL, ModeAllOld)}, BatchOptions{})
	require.Len(t, result.Orgs, 1)
	assert.Equal(t, OutcomeFailed, result.Orgs[0].Outcome)
	assert.Contains(t, result.Orgs[0].Reason, "INVALID_SESSION_ID")
}

func TestRunOrgFailedProductionCheck(t *testing.T) {
	org := &fakeOrg{orgErr: errors.New("connection reset"), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: org})
	h.runner.AssumeYes = true

	result := h.runner.RunBatch(context.Background(), []Target{target(sandboxURL, ModeAllOld)}, BatchOptions{})
	require.Len(t, result.Orgs, 1)
	assert.True(t, result.Orgs[0].Production)
	assert.Equal(t, OutcomeSkipped, result.Orgs[0].Outcome)
	assert.Empty(t, org.deleted)
}

func TestRunOrgSkipProductionCheck(t *testing.T) {
	org := &fakeOrg{orgErr: errors.New("must not be called"), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{productionURL: org})
	h.runner.AssumeYes = true

	tgt := target(productionURL, ModeAllOld)
	tgt.SkipProductionCheck = true
	result := h.runner.RunOrg(context.Background(), tgt)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.False(t, result.Production)
	assert.Len(t, org.deleted, 3)
}

func TestRunOrgProductionConfirmation(t *testing.T) {
	tests := []struct {
		name        string
		answers     []any
		wantOutcome Outcome
		wantDeleted int
		wantQueried bool
	}{
		{name: "confirmed", answers: []any{"YES", "DELETE"}, wantOutcome: OutcomeSuccess, wantDeleted: 3, wantQueried: true},
		{name: "declined", answers: []any{"yes"}, wantOutcome: OutcomeSkipped},
		{name: "aborted", answers: []any{prompt.ErrAborted}, wantOutcome: OutcomeSkipped},
		{name: "delete not confirmed", answers: []any{"YES", "delete"}, wantOutcome: OutcomeSuccess, wantQueried: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prod := &fakeOrg{name: "Acme", sandbox: boolPtr(false), records: sampleRecords()}
			h := newHarness(t, map[string]*fakeOrg{productionURL: prod})
			scripted := prompt.NewScripted(tt.answers...)
			h.runner.Prompter = scripted

			result := h.runner.RunOrg(context.Background(), target(productionURL, ModeAllOld))
			assert.Equal(t, tt.wantOutcome, result.Outcome, result.Reason)
			assert.Len(t, prod.deleted, tt.wantDeleted)
			assert.Equal(t, tt.wantQueried, len(prod.queries) > 0)
			assert.Zero(t, scripted.Remaining())
			assert.Equal(t, "Acme", result.OrgName)
			assert.Equal(t, "admin@acme.test", result.Identity)
		})
	}
}

func TestRunOrgProductionHeadless(t *testing.T) {
	prod := &fakeOrg{name: "Acme", sandbox: boolPtr(false), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{productionURL: prod})
	h.runner.AssumeYes = true

	result := h.runner.RunOrg(context.Background(), target(productionURL, ModeAllOld))
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Empty(t, prod.deleted)
}

func TestRunOrgConfirmationGate(t *testing.T) {
	tests := []struct {
		name       string
		dryRun     bool
		assumeYes  bool
		prompter   prompt.Prompter
		wantDelete bool
		wantEvent  audit.EventType
	}{
		{name: "headless without --yes", wantEvent: audit.EventDeleteCancelled},
		{name: "headless with --yes", assumeYes: true, wantDelete: true, wantEvent: audit.EventDeleteConfirmed},
		{name: "dry run wins over --yes", dryRun: true, assumeYes: true, wantEvent: audit.EventDeleteCancelled},
		{name: "interactive DELETE", prompter: prompt.NewScripted("DELETE"), wantDelete: true, wantEvent: audit.EventDeleteConfirmed},
		{name: "interactive rejected", prompter: prompt.NewScripted("no"), wantEvent: audit.EventDeleteCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
			h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
			h.runner.DryRun = tt.dryRun
			h.runner.AssumeYes = tt.assumeYes
			h.runner.Prompter = tt.prompter

			result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeAllOld))
			assert.Equal(t, OutcomeSuccess, result.Outcome)
			assert.Equal(t, 3, result.Planned)
			assert.FileExists(t, result.PlanFile)
			if tt.wantDelete {
				assert.Len(t, uat.deleted, 3)
				assert.Equal(t, 3, result.Deleted())
			} else {
				assert.Empty(t, uat.deleted)
				assert.Nil(t, result.Delete)
			}
			assert.Contains(t, h.sink.types(), audit.EventPlanCreated)
			assert.Contains(t, h.sink.types(), tt.wantEvent)
		})
	}
}

func TestRunOrgPlanFile(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.DryRun = true
	h.runner.SessionID = "20260314_093000"

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeAllOld))
	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, h.planDir+string(os.PathSeparator)+"flows_to_delete_20260314_093000.json", result.PlanFile)

	plan, err := audit.ReadPlan(result.PlanFile)
	require.NoError(t, err)
	assert.Equal(t, "20260314_093000", plan.SessionID)
	assert.Equal(t, sandboxURL, plan.InstanceURL)
	assert.Equal(t, 3, plan.TotalFlows)
	ids := make([]string, 0, len(plan.Flows))
	for _, f := range plan.Flows {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"301A2", "301A1", "301C1"}, ids)
}

func TestRunOrgSpecificNames(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.AssumeYes = true

	tgt := target(sandboxURL, ModeBySpecificNames)
	tgt.FlowNames = []string{"Flow_C"}
	result := h.runner.RunOrg(context.Background(), tgt)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, uat.queries, 1)
	assert.Equal(t, []string{"Flow_C"}, uat.queries[0])
	assert.Equal(t, []string{"301C1"}, uat.deleted)
}

func TestRunOrgSpecificNamesMissing(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeBySpecificNames))
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Empty(t, uat.queries)
}

func TestRunOrgNothingToDelete(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: []retention.VersionRecord{
		{ID: "301B1", DefinitionID: "300B", VersionNumber: 1, Status: retention.StatusObsolete, DeveloperName: "Flow_B"},
	}}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.AssumeYes = true

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeAllOld))
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Zero(t, result.Planned)
	assert.Empty(t, result.PlanFile)
	assert.NotContains(t, h.sink.types(), audit.EventPlanCreated)
}

func TestRunOrgDuplicateVersionsKept(t *testing.T) {
	records := append(sampleRecords(),
		retention.VersionRecord{ID: "301D2a", DefinitionID: "300D", VersionNumber: 2, Status: retention.StatusObsolete, DeveloperName: "Flow_D"},
		retention.VersionRecord{ID: "301D2b", DefinitionID: "300D", VersionNumber: 2, Status: retention.StatusObsolete, DeveloperName: "Flow_D"},
		retention.VersionRecord{ID: "301D1", DefinitionID: "300D", VersionNumber: 1, Status: retention.StatusObsolete, DeveloperName: "Flow_D"},
	)
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: records}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.AssumeYes = true

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeAllOld))
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Flow_D")
	assert.NotContains(t, uat.deleted, "301D1")
	assert.Len(t, uat.deleted, 3)
}

func TestRunOrgCompositeFailure(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords(),
		compositeErr: &client.HTTPError{StatusCode: http.StatusUnauthorized, ErrorCode: "INVALID_SESSION_ID", Message: "Session expired"}}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.AssumeYes = true

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeAllOld))
	assert.Equal(t, OutcomeFailed, result.Outcome)
	var deleteErr *DeleteError
	require.ErrorAs(t, result.Err, &deleteErr)
	assert.Equal(t, 1, deleteErr.Batch)
	require.NotNil(t, result.Delete)
	assert.Zero(t, result.Delete.TotalSucceeded)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.DeleteBatches.WithLabelValues("error")), 0)
}

func TestRunBatchCarriesSelection(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	dev := &fakeOrg{name: "Acme DEV", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat, sandbox2URL: dev})
	scripted := prompt.NewScripted([]string{"Flow_A"}, "DELETE", "DELETE")
	h.runner.Prompter = scripted

	result := h.runner.RunBatch(context.Background(), []Target{
		target(sandboxURL, ModeBrowseAndSelect),
		target(sandbox2URL, ModeBrowseAndSelect),
	}, BatchOptions{CarrySelection: true})

	require.Len(t, result.Orgs, 2)
	assert.Equal(t, []string{"Flow_A"}, result.Orgs[0].Selection)
	assert.Equal(t, []string{"Flow_A"}, result.Orgs[1].Selection)
	assert.ElementsMatch(t, []string{"301A2", "301A1"}, uat.deleted)
	assert.ElementsMatch(t, []string{"301A2", "301A1"}, dev.deleted)

	require.Len(t, dev.queries, 1, "carried selection skips the browse query")
	assert.Equal(t, []string{"Flow_A"}, dev.queries[0])
	assert.Equal(t, 1, countPrefix(scripted.Asked, "Select the Flows"))
	assert.Zero(t, scripted.Remaining())
}

func TestRunBatchWithoutCarrySelection(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	dev := &fakeOrg{name: "Acme DEV", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat, sandbox2URL: dev})
	scripted := prompt.NewScripted([]string{"Flow_A"}, "DELETE", []string{"Flow_C"}, "DELETE")
	h.runner.Prompter = scripted

	result := h.runner.RunBatch(context.Background(), []Target{
		target(sandboxURL, ModeBrowseAndSelect),
		target(sandbox2URL, ModeBrowseAndSelect),
	}, BatchOptions{})

	require.Len(t, result.Orgs, 2)
	assert.Equal(t, []string{"301C1"}, dev.deleted)
	assert.Equal(t, 2, countPrefix(scripted.Asked, "Select the Flows"))
}

func TestRunBatchBrowseHeadless(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.AssumeYes = true

	result := h.runner.RunBatch(context.Background(), []Target{target(sandboxURL, ModeBrowseAndSelect)}, BatchOptions{CarrySelection: true})
	require.Len(t, result.Orgs, 1)
	assert.Equal(t, OutcomeFailed, result.Orgs[0].Outcome)
	assert.Contains(t, result.Orgs[0].Reason, "browse mode")
	assert.Empty(t, uat.deleted)
}

func TestRunBatchBrowseNothingSelected(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	h.runner.Prompter = prompt.NewScripted([]string{})

	result := h.runner.RunOrg(context.Background(), target(sandboxURL, ModeBrowseAndSelect))
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Empty(t, result.Selection)
	assert.Empty(t, uat.deleted)
}

func TestRunOrgCancelledContext(t *testing.T) {
	uat := &fakeOrg{name: "Acme UAT", sandbox: boolPtr(true), records: sampleRecords()}
	h := newHarness(t, map[string]*fakeOrg{sandboxURL: uat})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.runner.RunOrg(ctx, target(sandboxURL, ModeAllOld))
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Empty(t, h.auth.calls)
}

func TestTargetFromConfigMode(t *testing.T) {
	tgt, err := TargetFromConfig(configOrg("3"), "secret")
	require.NoError(t, err)
	assert.Equal(t, ModeBrowseAndSelect, tgt.Mode)
	assert.Equal(t, "secret", tgt.ClientSecret)

	_, err = TargetFromConfig(configOrg("7"), "")
	require.Error(t, err)
}

func configOrg(cleanupType string) config.Org {
	org := config.Org{Instance: sandboxURL, ClientID: "3MVG9abcdefghijk", CleanupType: cleanupType}
	org.ApplyDefaults()
	return org
}

func countPrefix(values []string, prefix string) int {
	n := 0
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			n++
		}
	}
	return n
}

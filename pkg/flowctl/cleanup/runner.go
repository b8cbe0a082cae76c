package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/telekom/flowctl/pkg/audit"
	"github.com/telekom/flowctl/pkg/flowctl/auth"
	"github.com/telekom/flowctl/pkg/flowctl/client"
	"github.com/telekom/flowctl/pkg/flowctl/output"
	"github.com/telekom/flowctl/pkg/flowctl/prompt"
	"github.com/telekom/flowctl/pkg/flowctl/retention"
	"github.com/telekom/flowctl/pkg/metrics"
)

const (
	sessionLayout = "20060102_150405"
	previewLimit  = 5

	productionToken = "YES"
	deleteToken     = "DELETE"
)

// Authenticator produces a session for one org.
type Authenticator interface {
	Authenticate(ctx context.Context, req auth.Request) (*auth.Session, error)
}

// OrgAPI is the part of the REST client the runner uses.
type OrgAPI interface {
	CompositeAPI
	Organization(ctx context.Context) (*client.Organization, error)
	FlowVersions(ctx context.Context, names []string) ([]retention.VersionRecord, error)
}

// ClientFactory builds an API client bound to one session.
type ClientFactory func(session *auth.Session) (OrgAPI, error)

// Runner processes orgs one after another. Per-org state is kept in an
// orgRun and dropped once the org reaches a terminal outcome.
type Runner struct {
	Auth      Authenticator
	NewClient ClientFactory
	// Prompter is nil for headless runs.
	Prompter prompt.Prompter
	Plans    *audit.PlanWriter
	Audit    *audit.Recorder
	Metrics  *metrics.Recorder
	Limiter  *rate.Limiter
	Out      io.Writer
	Logger   *zap.SugaredLogger

	// SessionID names plan files; defaults to the start time.
	SessionID string
	DryRun    bool
	// AssumeYes answers the deletion confirmation.
	AssumeYes bool
	Now       func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) logger() *zap.SugaredLogger {
	if r.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return r.Logger
}

func (r *Runner) sessionID() string {
	if r.SessionID == "" {
		r.SessionID = r.now().Format(sessionLayout)
	}
	return r.SessionID
}

func (r *Runner) plans() *audit.PlanWriter {
	if r.Plans == nil {
		return &audit.PlanWriter{}
	}
	return r.Plans
}

// NewRunResult starts an empty result for this runner's run.
func (r *Runner) NewRunResult() *RunResult {
	return &RunResult{
		RunID:     r.Audit.RunID(),
		StartedAt: r.now().UTC(),
		DryRun:    r.DryRun,
		Orgs:      []OrgResult{},
	}
}

// RunOrg processes a single org interactively: a production org without
// auto confirmation needs the YES token.
func (r *Runner) RunOrg(ctx context.Context, target Target) OrgResult {
	return r.runOrg(ctx, target, false, r.sessionID(), nil)
}

// RunBatch processes targets sequentially. A failing org never stops the
// batch; production orgs without auto confirmation are skipped.
func (r *Runner) RunBatch(ctx context.Context, targets []Target, opts BatchOptions) *RunResult {
	out := r.out()
	result := r.NewRunResult()
	base := r.sessionID()
	output.Info(out, "Processing %d organizations...", len(targets))

	var carried []string
	for i, target := range targets {
		_, _ = fmt.Fprintln(out)
		output.Heading(out, fmt.Sprintf("Processing Org %d/%d: %s", i+1, len(targets), target.InstanceURL))

		var carry []string
		if opts.CarrySelection && target.Mode == ModeBrowseAndSelect {
			carry = carried
		}
		org := r.runOrg(ctx, target, true, fmt.Sprintf("%s_%d", base, i+1), carry)
		if opts.CarrySelection && carried == nil && len(org.Selection) > 0 {
			carried = org.Selection
		}
		result.Add(org)
	}
	result.FinishedAt = r.now().UTC()

	_, _ = fmt.Fprintln(out)
	output.Heading(out, "Batch cleanup summary")
	output.Pass(out, "Successful: %d", result.Succeeded)
	output.Warn(out, "Skipped: %d", result.Skipped)
	output.Fail(out, "Failed: %d", result.Failed)
	if result.Succeeded == 0 {
		output.Warn(out, "No organizations were processed successfully")
	}
	return result
}

// runOrg drives one org to a terminal outcome. Panics are recovered here so
// they only fail this org.
func (r *Runner) runOrg(ctx context.Context, target Target, batch bool, sessionID string, carried []string) (result OrgResult) {
	started := r.now()
	result = OrgResult{Instance: target.InstanceURL, Mode: target.Mode}
	run := &orgRun{
		Runner:    r,
		target:    target,
		batch:     batch,
		sessionID: sessionID,
		carried:   carried,
		result:    &result,
		log:       r.logger().With("instance", target.InstanceURL),
	}
	defer func() {
		if p := recover(); p != nil {
			run.log.Errorw("Recovered from panic while processing org", "panic", p)
			run.fail(fmt.Errorf("internal error: %v", p))
		}
		result.Duration = r.now().Sub(started)
		run.finish(ctx)
	}()

	if err := ctx.Err(); err != nil {
		run.fail(fmt.Errorf("run cancelled: %w", err))
		return result
	}
	run.execute(ctx)
	return result
}

type orgRun struct {
	*Runner
	target    Target
	batch     bool
	sessionID string
	carried   []string
	result    *OrgResult
	log       *zap.SugaredLogger

	api OrgAPI
}

func (o *orgRun) fail(err error) {
	o.result.Outcome = OutcomeFailed
	o.result.Reason = err.Error()
	o.result.Err = err
}

func (o *orgRun) skip(reason string) {
	o.result.Outcome = OutcomeSkipped
	o.result.Reason = reason
}

func (o *orgRun) succeed(reason string) {
	o.result.Outcome = OutcomeSuccess
	o.result.Reason = reason
}

func (o *orgRun) auditTarget() audit.Target {
	return audit.Target{Instance: o.target.InstanceURL, Kind: "org", Name: o.result.OrgName}
}

func (o *orgRun) record(ctx context.Context, eventType audit.EventType, details map[string]any) {
	o.Audit.Record(ctx, eventType, o.auditTarget(), o.result.Identity, details)
}

func (o *orgRun) finish(ctx context.Context) {
	out := o.out()
	o.Metrics.OrgCompleted(string(o.result.Outcome))
	switch o.result.Outcome {
	case OutcomeFailed:
		o.log.Errorw("Org failed", "reason", o.result.Reason)
		o.record(ctx, audit.EventOrgFailed, map[string]any{"reason": o.result.Reason})
		output.Fail(out, "Error processing %s: %s", o.target.InstanceURL, o.result.Reason)
	case OutcomeSkipped:
		o.log.Infow("Org skipped", "reason", o.result.Reason)
		o.record(ctx, audit.EventOrgSkipped, map[string]any{"reason": o.result.Reason})
		output.Warn(out, "Skipped %s: %s", o.target.InstanceURL, o.result.Reason)
	default:
		o.log.Infow("Org completed", "deleted", o.result.Deleted(), "failed", o.result.DeleteFailed())
	}
}

func (o *orgRun) execute(ctx context.Context) {
	if !o.authenticate(ctx) {
		return
	}
	if !o.checkProduction(ctx) {
		return
	}
	records, ok := o.resolveScope(ctx)
	if !ok {
		return
	}
	o.cleanup(ctx, records)
}

func (o *orgRun) authenticate(ctx context.Context) bool {
	out := o.out()
	output.Heading(out, "Authentication")
	started := o.now()
	session, err := o.Auth.Authenticate(ctx, auth.Request{
		InstanceURL:  o.target.InstanceURL,
		ClientID:     o.target.ClientID,
		ClientSecret: o.target.ClientSecret,
		Port:         o.target.CallbackPort,
	})
	o.Metrics.AuthObserved(o.now().Sub(started), err)
	if err != nil {
		details := map[string]any{"error": err.Error()}
		var failure *auth.Failure
		if errors.As(err, &failure) {
			details["kind"] = string(failure.Kind)
			if hint := failure.Hint(); hint != "" {
				output.Info(out, "%s", hint)
			}
		}
		o.record(ctx, audit.EventAuthFailure, details)
		o.fail(err)
		return false
	}
	o.result.Identity = session.Identity.Actor()
	o.record(ctx, audit.EventAuthSuccess, nil)
	output.Pass(out, "Authenticated to %s", o.target.InstanceURL)

	api, err := o.NewClient(session)
	if err != nil {
		o.fail(fmt.Errorf("failed to create API client: %w", err))
		return false
	}
	o.api = api
	return true
}

func (o *orgRun) checkProduction(ctx context.Context) bool {
	out := o.out()
	if o.target.SkipProductionCheck {
		output.Info(out, "Production check skipped (configured)")
		return true
	}
	output.Info(out, "Checking instance type...")
	production := true
	org, err := o.api.Organization(ctx)
	if err != nil {
		o.log.Warnw("Production check failed, treating org as production", "error", err)
		output.Warn(out, "Could not determine instance type, assuming PRODUCTION: %v", err)
	} else {
		production = org.Production()
		o.result.OrgName = org.Name
	}
	o.result.Production = production
	if !production {
		output.SandboxBanner(out, o.result.OrgName)
		return true
	}

	output.ProductionBanner(out, o.result.OrgName, "This action cannot be undone!")
	o.record(ctx, audit.EventOrgProductionDetected, nil)
	if o.target.AutoConfirmProduction {
		output.Warn(out, "Auto-confirming production deletion (configured)")
		return true
	}
	if o.batch {
		o.skip("production org, set auto_confirm_production to override")
		return false
	}
	if o.Prompter == nil {
		o.skip("production org needs interactive confirmation")
		return false
	}
	ok, err := o.Prompter.ConfirmToken("Are you sure you want to proceed?",
		"This is a PRODUCTION instance. Type YES to continue.", productionToken)
	switch {
	case errors.Is(err, prompt.ErrAborted):
		o.skip("production confirmation aborted")
		return false
	case err != nil:
		o.fail(fmt.Errorf("production confirmation: %w", err))
		return false
	case !ok:
		o.log.Info("Operation cancelled: user declined production confirmation")
		o.skip("production confirmation declined")
		return false
	}
	return true
}

func (o *orgRun) query(ctx context.Context, names []string) ([]retention.VersionRecord, bool) {
	records, err := o.api.FlowVersions(ctx, names)
	if err != nil {
		o.fail(fmt.Errorf("failed to query flow versions: %w", err))
		return nil, false
	}
	o.log.Infow("Queried flow versions", "names", len(names), "records", len(records))
	return records, true
}

func (o *orgRun) resolveScope(ctx context.Context) ([]retention.VersionRecord, bool) {
	out := o.out()
	switch o.target.Mode {
	case ModeAllOld, "":
		output.Info(out, "Cleaning up all old Flow versions")
		return o.query(ctx, nil)
	case ModeBySpecificNames:
		if len(o.target.FlowNames) == 0 {
			o.fail(errors.New("no flow names given for specific cleanup"))
			return nil, false
		}
		output.Info(out, "Looking for old versions of: %s", strings.Join(o.target.FlowNames, ", "))
		return o.query(ctx, o.target.FlowNames)
	case ModeBrowseAndSelect:
		return o.browse(ctx)
	}
	o.fail(fmt.Errorf("unknown cleanup mode %q", o.target.Mode))
	return nil, false
}

func (o *orgRun) browse(ctx context.Context) ([]retention.VersionRecord, bool) {
	out := o.out()
	if o.carried != nil {
		output.Info(out, "Using selection from the first org: %s", strings.Join(o.carried, ", "))
		o.result.Selection = o.carried
		return o.query(ctx, o.carried)
	}
	if o.Prompter == nil {
		o.fail(errors.New("browse mode needs an interactive terminal or a carried selection"))
		return nil, false
	}

	all, ok := o.query(ctx, nil)
	if !ok {
		return nil, false
	}
	summaries := retention.Summarize(all)
	choices := make([]prompt.Choice, 0, len(summaries))
	for _, s := range summaries {
		if s.Deletable == 0 {
			continue
		}
		choices = append(choices, prompt.Choice{
			Label: fmt.Sprintf("%s (%d of %d versions deletable)", s.DeveloperName, s.Deletable, s.Versions),
			Value: s.DeveloperName,
		})
	}
	if len(choices) == 0 {
		output.Pass(out, "No Flow versions found to delete.")
		o.succeed("nothing to delete")
		return nil, false
	}
	output.WriteSummaryTable(out, summaries)

	selected, err := o.Prompter.MultiSelect("Select the Flows to clean up", choices)
	switch {
	case errors.Is(err, prompt.ErrAborted):
		o.succeed("selection cancelled")
		return nil, false
	case err != nil:
		o.fail(fmt.Errorf("flow selection: %w", err))
		return nil, false
	case len(selected) == 0:
		output.Info(out, "No Flows selected.")
		o.succeed("no flows selected")
		return nil, false
	}
	o.result.Selection = selected
	return o.query(ctx, selected)
}

func (o *orgRun) cleanup(ctx context.Context, records []retention.VersionRecord) {
	out := o.out()
	plan := retention.Partition(records)
	for _, w := range plan.Warnings {
		o.log.Warnw("Duplicate version number, keeping every version of the definition",
			"definition_id", w.DefinitionID, "name", w.DeveloperName, "version", w.VersionNumber)
		output.Warn(out, "%s", w.String())
		o.result.Warnings = append(o.result.Warnings, w.String())
	}
	if len(plan.Delete) == 0 {
		output.Pass(out, "No Flow versions found to delete.")
		o.succeed("nothing to delete")
		return
	}
	o.result.Planned = len(plan.Delete)
	output.Info(out, "Found %d non-active Flow versions, %d can be deleted", len(records), len(plan.Delete))

	path, err := o.plans().Write(o.sessionID, o.target.InstanceURL, plan.Delete)
	if err != nil {
		o.fail(err)
		return
	}
	o.result.PlanFile = path
	output.Info(out, "Deletion list saved to: %s", path)
	o.Metrics.PlanCreated(o.target.InstanceURL, len(plan.Delete))
	o.record(ctx, audit.EventPlanCreated, map[string]any{
		"plan_file": path,
		"versions":  len(plan.Delete),
		"mode":      string(o.target.Mode),
	})

	preview := plan.Delete
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	output.WriteVersionTable(out, preview)
	if rest := len(plan.Delete) - len(preview); rest > 0 {
		_, _ = fmt.Fprintf(out, "... and %d more\n", rest)
	}

	if !o.confirmDelete(ctx) {
		return
	}

	deleter := &Deleter{
		Client:  o.api,
		Limiter: o.Limiter,
		Logger:  o.log,
		OnBatch: func(batch BatchOutcome, err error) {
			o.Metrics.BatchCompleted(batch.Succeeded, batch.Failed, err)
			details := map[string]any{
				"batch":     batch.Batch,
				"succeeded": batch.Succeeded,
				"failed":    batch.Failed,
			}
			if err != nil {
				details["error"] = err.Error()
			}
			o.record(ctx, audit.EventDeleteBatch, details)
			if err == nil {
				output.Info(out, "Batch %d: %d successful, %d failed", batch.Batch, batch.Succeeded, batch.Failed)
			}
		},
	}
	summary, err := deleter.Delete(ctx, retention.IDs(plan.Delete))
	o.result.Delete = summary
	o.record(ctx, audit.EventDeleteCompleted, map[string]any{
		"succeeded": summary.TotalSucceeded,
		"failed":    summary.TotalFailed,
	})
	for _, item := range summary.Failures() {
		output.Fail(out, "%s (%s): failed with status %d %s", item.ReferenceID, item.RecordID, item.StatusCode, item.Body)
	}
	if err != nil {
		o.fail(err)
		return
	}
	output.Pass(out, "Overall: %d successful, %d failed", summary.TotalSucceeded, summary.TotalFailed)
	o.succeed("")
}

// confirmDelete reports whether deletion may proceed. A refusal ends the org
// successfully without deleting.
func (o *orgRun) confirmDelete(ctx context.Context) bool {
	out := o.out()
	n := o.result.Planned
	cancel := func(reason string) bool {
		o.log.Infow("Deletion cancelled", "reason", reason)
		o.record(ctx, audit.EventDeleteCancelled, map[string]any{"reason": reason})
		output.Warn(out, "Operation cancelled: %s", reason)
		o.succeed(reason)
		return false
	}

	switch {
	case o.DryRun:
		return cancel(fmt.Sprintf("dry run, %d versions would be deleted", n))
	case o.AssumeYes:
		output.Info(out, "Deletion confirmed by --yes")
	case o.Prompter == nil:
		return cancel("confirmation required, rerun with --yes")
	default:
		if o.result.Production {
			output.ProductionBanner(out, o.result.OrgName,
				"PRODUCTION INSTANCE - This action cannot be undone!",
				"Please verify this is what you want to do!")
		} else {
			output.Info(out, "Sandbox instance, safe to proceed")
		}
		ok, err := o.Prompter.ConfirmToken(
			fmt.Sprintf("Are you sure you want to delete %d Flow versions?", n),
			"Type DELETE to confirm.", deleteToken)
		switch {
		case err != nil && !errors.Is(err, prompt.ErrAborted):
			o.fail(fmt.Errorf("delete confirmation: %w", err))
			return false
		case err != nil || !ok:
			return cancel("deletion not confirmed")
		}
	}
	o.record(ctx, audit.EventDeleteConfirmed, map[string]any{"versions": n})
	output.Info(out, "Proceeding with deletion of %d Flow versions...", n)
	return true
}

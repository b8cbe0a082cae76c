package cleanup

import (
	"fmt"
	"time"

	"github.com/telekom/flowctl/pkg/flowctl/config"
)

// Mode selects which Flow versions of an org are in scope.
type Mode string

const (
	ModeAllOld          Mode = config.CleanupAll
	ModeBySpecificNames Mode = config.CleanupSpecific
	ModeBrowseAndSelect Mode = config.CleanupBrowse
)

// Target is one org to clean up.
type Target struct {
	InstanceURL           string
	ClientID              string
	ClientSecret          string
	Mode                  Mode
	FlowNames             []string
	SkipProductionCheck   bool
	AutoConfirmProduction bool
	CallbackPort          int
}

// TargetFromConfig converts a configured org. The client secret is resolved
// by the caller.
func TargetFromConfig(org config.Org, secret string) (Target, error) {
	mode, err := org.Mode()
	if err != nil {
		return Target{}, fmt.Errorf("org %s: %w", org.Instance, err)
	}
	return Target{
		InstanceURL:           org.Instance,
		ClientID:              org.ClientID,
		ClientSecret:          secret,
		Mode:                  Mode(mode),
		FlowNames:             org.FlowNames,
		SkipProductionCheck:   org.SkipProductionCheck,
		AutoConfirmProduction: org.AutoConfirmProduction,
		CallbackPort:          org.CallbackPort,
	}, nil
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// OrgResult is the terminal state of one org.
type OrgResult struct {
	Instance   string         `json:"instance" yaml:"instance"`
	OrgName    string         `json:"org_name,omitempty" yaml:"org_name,omitempty"`
	Mode       Mode           `json:"mode" yaml:"mode"`
	Production bool           `json:"production" yaml:"production"`
	Outcome    Outcome        `json:"outcome" yaml:"outcome"`
	Reason     string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Identity   string         `json:"identity,omitempty" yaml:"identity,omitempty"`
	Planned    int            `json:"planned" yaml:"planned"`
	PlanFile   string         `json:"plan_file,omitempty" yaml:"plan_file,omitempty"`
	Warnings   []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Selection  []string       `json:"selection,omitempty" yaml:"selection,omitempty"`
	Delete     *DeleteSummary `json:"delete,omitempty" yaml:"delete,omitempty"`
	Duration   time.Duration  `json:"duration" yaml:"duration"`

	// Err is the cause of a failed outcome.
	Err error `json:"-" yaml:"-"`
}

// Deleted is the number of versions removed from the org.
func (r OrgResult) Deleted() int {
	if r.Delete == nil {
		return 0
	}
	return r.Delete.TotalSucceeded
}

// DeleteFailed is the number of versions the org refused to delete.
func (r OrgResult) DeleteFailed() int {
	if r.Delete == nil {
		return 0
	}
	return r.Delete.TotalFailed
}

// RunResult aggregates the orgs of one invocation.
type RunResult struct {
	RunID      string      `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at" yaml:"finished_at"`
	DryRun     bool        `json:"dry_run" yaml:"dry_run"`
	Orgs       []OrgResult `json:"orgs" yaml:"orgs"`
	Succeeded  int         `json:"succeeded" yaml:"succeeded"`
	Skipped    int         `json:"skipped" yaml:"skipped"`
	Failed     int         `json:"failed" yaml:"failed"`
}

// Add appends an org result and updates the counters.
func (r *RunResult) Add(org OrgResult) {
	r.Orgs = append(r.Orgs, org)
	switch org.Outcome {
	case OutcomeSuccess:
		r.Succeeded++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

type BatchOptions struct {
	// CarrySelection reuses the flows picked for the first browse-mode org
	// for every later browse-mode org.
	CarrySelection bool
}

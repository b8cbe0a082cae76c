package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telekom/flowctl/pkg/audit"
	"github.com/telekom/flowctl/pkg/flowctl/cleanup"
	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/flowctl/output"
	"github.com/telekom/flowctl/pkg/flowctl/prompt"
	"github.com/telekom/flowctl/pkg/metrics"
)

type cleanupOptions struct {
	port           int
	dryRun         bool
	assumeYes      bool
	carrySelection bool
}

func NewCleanupCommand() *cobra.Command {
	var opts cleanupOptions

	cmd := &cobra.Command{
		Use:     "cleanup",
		Aliases: []string{"run"},
		Short:   "Delete old Flow versions from one or more orgs",
		Long: `Authenticates against each org, lists the non-active Flow versions that
are not the latest version of their Flow, writes a deletion plan and deletes
them after confirmation.

With --config every org in the file is processed in batch mode; production
orgs are skipped unless auto_confirm_production is set. Without a
configuration file flowctl asks for a single org interactively.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 0, "Callback port for the login redirect (overrides callback_port)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Write the deletion plan without deleting anything")
	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "Confirm deletions without prompting")
	cmd.Flags().BoolVar(&opts.carrySelection, "carry-selection", false, "Reuse the Flows picked for the first browse-mode org for later orgs")

	return cmd
}

func runCleanup(ctx context.Context, rt *runtimeState, opts cleanupOptions) error {
	if opts.port != 0 && !config.ValidCallbackPort(opts.port) {
		return fmt.Errorf("--port must be between %d and %d", config.MinCallbackPort, config.MaxCallbackPort)
	}
	progress := rt.ProgressWriter()
	prompter := rt.Prompter()

	targets, batch, err := rt.resolveRunTargets(prompter, opts.port)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			output.Warn(progress, "Operation cancelled.")
			return nil
		}
		return err
	}

	sessionID := rt.Now().Format(sessionLayout)
	session, err := rt.openSessionLog(sessionID)
	if err != nil {
		return err
	}
	defer session.Close()
	logger := session.Logger
	if session.Path != "" {
		output.Info(progress, "Logging to %s", session.Path)
	}

	authenticator, err := rt.buildAuthenticator(logger)
	if err != nil {
		return err
	}
	newClient, err := rt.buildClientFactory(logger)
	if err != nil {
		return err
	}
	var auditCfg *config.AuditConfig
	if rt.cfg != nil {
		auditCfg = rt.cfg.Audit
	}
	sink, err := buildAuditSink(auditCfg, logger.Desugar().Named("audit"))
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(uuid.NewString(), sink, logger.Desugar())
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warnw("Failed to close audit sink", "error", err)
		}
	}()
	rec := metrics.New()

	runner := &cleanup.Runner{
		Auth:      authenticator,
		NewClient: newClient,
		Prompter:  prompter,
		Plans:     &audit.PlanWriter{Dir: rt.settings().OutputDir, Now: rt.now},
		Audit:     recorder,
		Metrics:   rec,
		Limiter:   rt.buildLimiter(),
		Out:       progress,
		Logger:    logger,
		SessionID: sessionID,
		DryRun:    opts.dryRun,
		AssumeYes: opts.assumeYes,
		Now:       rt.now,
	}

	runTarget := audit.Target{Kind: "run", Name: sessionID}
	recorder.Record(ctx, audit.EventRunStarted, runTarget, "", map[string]any{
		"orgs":    len(targets),
		"batch":   batch,
		"dry_run": opts.dryRun,
	})
	logger.Infow("Starting Flow cleanup", "orgs", len(targets), "batch", batch, "dry_run", opts.dryRun)

	var result *cleanup.RunResult
	if batch {
		result = runner.RunBatch(ctx, targets, cleanup.BatchOptions{CarrySelection: opts.carrySelection})
	} else {
		result = runner.NewRunResult()
		result.Add(runner.RunOrg(ctx, targets[0]))
		result.FinishedAt = rt.Now().UTC()
	}

	recorder.Record(ctx, audit.EventRunCompleted, runTarget, "", map[string]any{
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	logger.Infow("Flow cleanup finished", "succeeded", result.Succeeded, "skipped", result.Skipped, "failed", result.Failed)
	rt.deliverReport(ctx, result, logger, rec)

	if err := writeRunReport(rt.Writer(), rt.format(), result); err != nil {
		return err
	}
	if session.Path != "" {
		output.Info(progress, "Log file: %s", session.Path)
	}

	if !batch && result.Failed > 0 {
		org := result.Orgs[0]
		if org.Err != nil {
			return org.Err
		}
		return errors.New(org.Reason)
	}
	return nil
}

// resolveRunTargets returns the orgs to process and whether they come from a
// configuration file (batch mode).
func (rt *runtimeState) resolveRunTargets(prompter prompt.Prompter, port int) ([]cleanup.Target, bool, error) {
	progress := rt.ProgressWriter()
	if rt.configPath != "" {
		err := rt.EnsureConfigLoaded()
		if err == nil {
			targets, err := resolveTargets(rt.cfg, port)
			return targets, true, err
		}
		if prompter == nil {
			return nil, false, err
		}
		output.Warn(progress, "%v", err)
		output.Info(progress, "Falling back to interactive setup")
	}
	if prompter == nil {
		return nil, false, errors.New("no configuration file given, --config or FLOWCTL_CONFIG is required with --non-interactive")
	}

	useFile, err := prompter.Confirm("Do you want to use a configuration file?")
	if err != nil {
		return nil, false, err
	}
	if useFile {
		path, err := prompter.Input("Path to configuration file", "flowctl.json", requireValue("configuration file path"))
		if err != nil {
			return nil, false, err
		}
		cfg, err := config.Load(path)
		if err == nil {
			rt.cfg, rt.configPath = cfg, path
			targets, err := resolveTargets(cfg, port)
			return targets, true, err
		}
		output.Warn(progress, "%v", err)
	}

	target, err := interactiveTarget(prompter, progress, port)
	if err != nil {
		return nil, false, err
	}
	return []cleanup.Target{target}, false, nil
}

func requireValue(name string) func(string) error {
	return func(value string) error {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// interactiveTarget asks for a single org.
func interactiveTarget(p prompt.Prompter, out io.Writer, portFlag int) (cleanup.Target, error) {
	raw, err := p.Input("Salesforce instance URL", "mycompany.my.salesforce.com", requireValue("instance URL"))
	if err != nil {
		return cleanup.Target{}, err
	}
	instance := config.NormalizeInstanceURL(raw)
	output.Info(out, "Using instance %s", instance)

	port := portFlag
	if port == 0 {
		raw, err := p.Input(fmt.Sprintf("Callback port (%d-%d)", config.MinCallbackPort, config.MaxCallbackPort),
			strconv.Itoa(config.DefaultCallbackPort), nil)
		if err != nil {
			return cleanup.Target{}, err
		}
		port = parseCallbackPort(raw, out)
	}

	clientID, err := p.Input("Connected App consumer key", "", requireValue("consumer key"))
	if err != nil {
		return cleanup.Target{}, err
	}
	secret, err := p.Input("Consumer secret (leave empty for PKCE-only apps)", "", nil)
	if err != nil {
		return cleanup.Target{}, err
	}
	mode, err := p.Select("What would you like to clean up?", []prompt.Choice{
		{Label: "All old Flow versions", Value: config.CleanupAll},
		{Label: "Old versions of specific Flows", Value: config.CleanupSpecific},
		{Label: "Browse Flows and pick", Value: config.CleanupBrowse},
	})
	if err != nil {
		return cleanup.Target{}, err
	}

	target := cleanup.Target{
		InstanceURL:  instance,
		ClientID:     clientID,
		ClientSecret: secret,
		Mode:         cleanup.Mode(mode),
		CallbackPort: port,
	}
	if target.Mode == cleanup.ModeBySpecificNames {
		names, err := p.Lines("Flow API names", "Enter one Flow developer name per line.")
		if err != nil {
			return cleanup.Target{}, err
		}
		if len(names) == 0 {
			return cleanup.Target{}, errors.New("no flow names entered")
		}
		target.FlowNames = names
	}
	return target, nil
}

// parseCallbackPort falls back to the default port for invalid input.
func parseCallbackPort(raw string, out io.Writer) int {
	if raw == "" {
		return config.DefaultCallbackPort
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		output.Warn(out, "Invalid port %q, using default port %d", raw, config.DefaultCallbackPort)
		return config.DefaultCallbackPort
	}
	if !config.ValidCallbackPort(port) {
		output.Warn(out, "Port must be between %d and %d, using default port %d",
			config.MinCallbackPort, config.MaxCallbackPort, config.DefaultCallbackPort)
		return config.DefaultCallbackPort
	}
	return port
}

func writeRunReport(w io.Writer, format output.Format, result *cleanup.RunResult) error {
	if format != output.FormatTable {
		return output.WriteObject(w, format, result)
	}
	rows := make([]output.Row, 0, len(result.Orgs))
	for _, org := range result.Orgs {
		rows = append(rows, output.Row{
			org.Instance,
			org.OrgName,
			string(org.Outcome),
			strconv.Itoa(org.Planned),
			strconv.Itoa(org.Deleted()),
			strconv.Itoa(org.DeleteFailed()),
			org.Reason,
		})
	}
	_, _ = fmt.Fprintln(w)
	output.WriteTable(w, output.Row{"INSTANCE", "ORG", "OUTCOME", "PLANNED", "DELETED", "FAILED", "REASON"}, rows)
	return nil
}

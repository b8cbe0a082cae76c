package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/flowctl/pkg/flowctl/cleanup"
	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/flowctl/output"
	"github.com/telekom/flowctl/pkg/flowctl/prompt"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// ErrorWriter receives progress and prompts. Defaults to os.Stderr.
	ErrorWriter io.Writer
	Input       io.Reader

	// Authenticator and Prompter replace the browser login and the terminal
	// forms when set.
	Authenticator cleanup.Authenticator
	Prompter      prompt.Prompter
	// NewClient replaces the Salesforce REST client factory when set.
	NewClient cleanup.ClientFactory
	Now       func() time.Time
}

type runtimeState struct {
	configPath     string
	cfg            *config.Config
	outputFormat   string
	nonInteractive bool
	verbose        bool
	debug          bool
	noBrowser      bool
	writer         io.Writer
	errWriter      io.Writer
	input          io.Reader
	client         *http.Client

	authenticator cleanup.Authenticator
	prompter      prompt.Prompter
	newClient     cleanup.ClientFactory
	now           func() time.Time
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
		Input:        os.Stdin,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:    cfg.ConfigPath,
		writer:        cfg.OutputWriter,
		errWriter:     cfg.ErrorWriter,
		input:         cfg.Input,
		authenticator: cfg.Authenticator,
		prompter:      cfg.Prompter,
		newClient:     cfg.NewClient,
		now:           cfg.Now,
	}

	root := &cobra.Command{
		Use:          "flowctl",
		Short:        "Clean up old Salesforce Flow versions",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.errWriter == nil {
				rt.errWriter = os.Stderr
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("FLOWCTL_OUTPUT")
			}
			if !rt.nonInteractive {
				rt.nonInteractive = envBool("FLOWCTL_NON_INTERACTIVE")
			}
			if !rt.verbose {
				rt.verbose = envBool("FLOWCTL_VERBOSE")
			}
			if !rt.noBrowser {
				rt.noBrowser = envBool("FLOWCTL_NO_BROWSER")
			}
			_, err := output.ParseFormat(rt.OutputFormat())
			return err
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to a JSON or YAML org configuration file")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Log to stderr in addition to the session log file")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&rt.noBrowser, "no-browser", false, "Print the login URL instead of opening a browser")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewCleanupCommand(),
		NewAuthCommand(),
		NewConfigCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func envBool(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true") || os.Getenv(name) == "1"
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	return string(output.FormatTable)
}

func (rt *runtimeState) format() output.Format {
	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return output.FormatTable
	}
	return format
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

// ProgressWriter receives human-readable progress. Structured output keeps
// stdout clean, so progress moves to stderr.
func (rt *runtimeState) ProgressWriter() io.Writer {
	if rt.format() == output.FormatTable {
		return rt.Writer()
	}
	return rt.ErrWriter()
}

func (rt *runtimeState) Now() time.Time {
	if rt.now != nil {
		return rt.now()
	}
	return time.Now()
}

// Prompter is nil when prompting is disabled.
func (rt *runtimeState) Prompter() prompt.Prompter {
	if rt.nonInteractive {
		return nil
	}
	if rt.prompter != nil {
		return rt.prompter
	}
	return &prompt.Form{In: rt.input, Out: rt.ErrWriter()}
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	if rt.configPath == "" {
		return errors.New("no configuration file given, use --config or FLOWCTL_CONFIG")
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

// settings falls back to FLOWCTL_LOG_DIR and FLOWCTL_OUTPUT_DIR for the
// directories the configuration file leaves empty.
func (rt *runtimeState) settings() config.Settings {
	var settings config.Settings
	if rt.cfg != nil {
		settings = rt.cfg.Settings
	}
	if settings.LogDir == "" {
		settings.LogDir = os.Getenv("FLOWCTL_LOG_DIR")
	}
	if settings.OutputDir == "" {
		settings.OutputDir = os.Getenv("FLOWCTL_OUTPUT_DIR")
	}
	return settings
}

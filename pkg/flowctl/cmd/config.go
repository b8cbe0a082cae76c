package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/flowctl/output"
	"github.com/telekom/flowctl/pkg/system"
)

const defaultConfigFile = "flowctl.json"

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the org configuration file",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(),
		newConfigViewCommand(),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write an example configuration file",
		Long: `Writes an example configuration with one sandbox and one production org.
The file format follows the extension: .yaml and .yml are written as YAML,
everything else as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = defaultConfigFile
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			cfg := config.Example()
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Check a configuration file without logging in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				rt.configPath, rt.cfg = args[0], nil
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if format := rt.format(); format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, maskConfig(rt.cfg))
			}

			w := rt.Writer()
			output.Pass(w, "Configuration valid: %d orgs", len(rt.cfg.Orgs))
			rows := make([]output.Row, 0, len(rt.cfg.Orgs))
			for _, org := range rt.cfg.Orgs {
				mode, _ := org.Mode()
				production := "confirm"
				switch {
				case org.SkipProductionCheck:
					production = "skip check"
				case org.AutoConfirmProduction:
					production = "auto-confirm"
				}
				rows = append(rows, output.Row{
					org.Instance,
					system.MaskPrefix(org.ClientID),
					mode,
					strings.Join(org.FlowNames, ","),
					strconv.Itoa(org.CallbackPort),
					production,
					secretSource(org),
				})
			}
			output.WriteTable(w, output.Row{"INSTANCE", "CLIENT ID", "MODE", "FLOWS", "PORT", "PRODUCTION", "SECRET"}, rows)
			return nil
		},
	}
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format := rt.format()
			if format == output.FormatTable {
				format = output.FormatYAML
			}
			return output.WriteObject(rt.Writer(), format, maskConfig(rt.cfg))
		},
	}
}

// maskConfig returns a copy of cfg without inline secrets.
func maskConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Orgs = make([]config.Org, len(cfg.Orgs))
	for i, org := range cfg.Orgs {
		if org.ClientSecret != "" {
			org.ClientSecret = system.Masked
		}
		masked.Orgs[i] = org
	}
	if cfg.Audit != nil && cfg.Audit.Webhook != nil && len(cfg.Audit.Webhook.Headers) > 0 {
		audit := *cfg.Audit
		webhook := *cfg.Audit.Webhook
		webhook.Headers = make(map[string]string, len(cfg.Audit.Webhook.Headers))
		for k, v := range cfg.Audit.Webhook.Headers {
			if system.IsSensitiveKey(k) {
				v = system.Masked
			}
			webhook.Headers[k] = v
		}
		audit.Webhook = &webhook
		masked.Audit = &audit
	}
	return &masked
}

func secretSource(org config.Org) string {
	switch {
	case org.ClientSecret != "":
		return "inline"
	case org.ClientSecretEnv != "":
		return "env:" + org.ClientSecretEnv
	case org.ClientSecretFile != "":
		return "file"
	case org.ClientSecretKeyring:
		return "keyring"
	}
	return "none"
}

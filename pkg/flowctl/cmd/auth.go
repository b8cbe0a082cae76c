package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/flowctl/pkg/flowctl/auth"
	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/flowctl/output"
	"github.com/telekom/flowctl/pkg/system"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Check logins and manage Connected App secrets",
	}
	cmd.AddCommand(newAuthLoginCommand(), newAuthSecretCommand())
	return cmd
}

// orgSelector picks one org from flags, falling back to the configuration file.
type orgSelector struct {
	instance string
	clientID string
	index    int
}

func (s *orgSelector) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.instance, "instance", "", "Salesforce instance URL or My Domain name")
	cmd.Flags().StringVar(&s.clientID, "client-id", "", "Connected App consumer key")
	cmd.Flags().IntVar(&s.index, "org", 0, "Index of the org in the configuration file when --instance is not set")
}

func (s *orgSelector) resolve(rt *runtimeState) (config.Org, error) {
	instance := config.NormalizeInstanceURL(s.instance)
	if rt.configPath != "" {
		if err := rt.EnsureConfigLoaded(); err != nil {
			return config.Org{}, err
		}
		for i, org := range rt.cfg.Orgs {
			if (instance == "" && i == s.index) || (instance != "" && org.Instance == instance) {
				if s.clientID != "" {
					org.ClientID = s.clientID
				}
				return org, nil
			}
		}
		if instance == "" {
			return config.Org{}, fmt.Errorf("no org with index %d in %s", s.index, rt.configPath)
		}
	}
	if instance == "" {
		return config.Org{}, errors.New("--instance is required without a configuration file")
	}
	org := config.Org{Instance: instance, ClientID: s.clientID}
	org.ApplyDefaults()
	return org, nil
}

func newAuthLoginCommand() *cobra.Command {
	var (
		selector        orgSelector
		clientSecretEnv string
		useKeyring      bool
		port            int
		identity        bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to an org and discard the token",
		Long: `Runs the browser login for one org to check the Connected App setup and
the callback port. The access token is never stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			org, err := selector.resolve(rt)
			if err != nil {
				return err
			}
			if clientSecretEnv != "" {
				org.ClientSecretEnv = clientSecretEnv
			}
			if useKeyring {
				org.ClientSecretKeyring = true
			}
			if port != 0 {
				org.CallbackPort = port
			}
			if !config.ValidCallbackPort(org.CallbackPort) {
				return fmt.Errorf("callback port must be between %d and %d", config.MinCallbackPort, config.MaxCallbackPort)
			}
			secret, err := auth.ResolveClientSecret(auth.SecretSource{
				Value:       org.ClientSecret,
				Env:         org.ClientSecretEnv,
				File:        org.ClientSecretFile,
				Keyring:     org.ClientSecretKeyring,
				InstanceURL: org.Instance,
				ClientID:    org.ClientID,
			})
			if err != nil {
				return err
			}

			session, err := system.NewLogger(system.LoggerOptions{Debug: rt.debug, Verbose: rt.verbose, Console: rt.ErrWriter()})
			if err != nil {
				return err
			}
			defer session.Close()
			authenticator, err := rt.buildAuthenticator(session.Logger)
			if err != nil {
				return err
			}
			if a, ok := authenticator.(*auth.Authenticator); ok && identity {
				a.LookupIdentity = true
			}

			result, err := authenticator.Authenticate(cmd.Context(), auth.Request{
				InstanceURL:  org.Instance,
				ClientID:     org.ClientID,
				ClientSecret: secret,
				Port:         org.CallbackPort,
			})
			if err != nil {
				var failure *auth.Failure
				if errors.As(err, &failure) {
					if hint := failure.Hint(); hint != "" {
						output.Info(rt.ErrWriter(), "%s", hint)
					}
				}
				return err
			}

			if format := rt.format(); format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, result)
			}
			w := rt.Writer()
			output.Pass(w, "Authenticated to %s", result.InstanceURL)
			if actor := result.Identity.Actor(); actor != "" {
				output.Info(w, "Logged in as %s", actor)
			}
			output.Info(w, "The access token was discarded.")
			return nil
		},
	}

	selector.bind(cmd)
	cmd.Flags().StringVar(&clientSecretEnv, "client-secret-env", "", "Environment variable holding the consumer secret")
	cmd.Flags().BoolVar(&useKeyring, "keyring", false, "Read the consumer secret from the OS keychain")
	cmd.Flags().IntVar(&port, "port", 0, "Callback port for the login redirect")
	cmd.Flags().BoolVar(&identity, "identity", false, "Look up the logged-in user")
	return cmd
}

func newAuthSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage Connected App secrets in the OS keychain",
	}
	cmd.AddCommand(newAuthSecretSetCommand(), newAuthSecretDeleteCommand())
	return cmd
}

func newAuthSecretSetCommand() *cobra.Command {
	var (
		selector orgSelector
		fromEnv  string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a consumer secret in the OS keychain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			org, err := selector.resolve(rt)
			if err != nil {
				return err
			}
			if org.ClientID == "" {
				return errors.New("--client-id is required")
			}

			var secret string
			switch {
			case fromEnv != "":
				secret = strings.TrimSpace(os.Getenv(fromEnv))
				if secret == "" {
					return fmt.Errorf("environment variable %s is empty", fromEnv)
				}
			default:
				prompter := rt.Prompter()
				if prompter == nil {
					return errors.New("--from-env is required with --non-interactive")
				}
				secret, err = prompter.Input("Consumer secret", "", requireValue("consumer secret"))
				if err != nil {
					return err
				}
			}

			if err := auth.StoreClientSecret(org.Instance, org.ClientID, secret); err != nil {
				return err
			}
			output.Pass(rt.Writer(), "Stored consumer secret for %s (%s) in the OS keychain", org.Instance, system.MaskPrefix(org.ClientID))
			return nil
		},
	}
	selector.bind(cmd)
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the secret from this environment variable")
	return cmd
}

func newAuthSecretDeleteCommand() *cobra.Command {
	var selector orgSelector
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a consumer secret from the OS keychain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			org, err := selector.resolve(rt)
			if err != nil {
				return err
			}
			if org.ClientID == "" {
				return errors.New("--client-id is required")
			}
			if err := auth.DeleteClientSecret(org.Instance, org.ClientID); err != nil {
				return err
			}
			output.Pass(rt.Writer(), "Removed consumer secret for %s", org.Instance)
			return nil
		},
	}
	selector.bind(cmd)
	return cmd
}

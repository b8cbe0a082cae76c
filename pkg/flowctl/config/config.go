package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultCallbackPort = 8080
	MinCallbackPort     = 1024
	MaxCallbackPort     = 65535
	DefaultAuthTimeout  = 300 * time.Second
)

const (
	CleanupAll      = "all"
	CleanupSpecific = "specific"
	CleanupBrowse   = "browse"
)

// Config is the batch configuration file: a list of orgs plus optional
// run-wide sections.
type Config struct {
	Orgs     []Org          `json:"orgs" yaml:"orgs"`
	Settings Settings       `json:"settings,omitempty" yaml:"settings,omitempty"`
	Audit    *AuditConfig   `json:"audit,omitempty" yaml:"audit,omitempty"`
	Metrics  *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Mail     *MailConfig    `json:"mail,omitempty" yaml:"mail,omitempty"`
}

type Org struct {
	Instance              string   `json:"instance" yaml:"instance"`
	ClientID              string   `json:"client_id" yaml:"client_id"`
	ClientSecret          string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	ClientSecretEnv       string   `json:"client_secret_env,omitempty" yaml:"client_secret_env,omitempty"`
	ClientSecretFile      string   `json:"client_secret_file,omitempty" yaml:"client_secret_file,omitempty"`
	ClientSecretKeyring   bool     `json:"client_secret_keyring,omitempty" yaml:"client_secret_keyring,omitempty"`
	CleanupType           string   `json:"cleanup_type" yaml:"cleanup_type"`
	FlowNames             []string `json:"flow_names" yaml:"flow_names"`
	SkipProductionCheck   bool     `json:"skip_production_check" yaml:"skip_production_check"`
	AutoConfirmProduction bool     `json:"auto_confirm_production" yaml:"auto_confirm_production"`
	CallbackPort          int      `json:"callback_port" yaml:"callback_port"`
}

type Settings struct {
	APIVersion      string  `json:"api_version,omitempty" yaml:"api_version,omitempty"`
	LogDir          string  `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	OutputDir       string  `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Timeout         string  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	BatchRate       float64 `json:"batch_rate,omitempty" yaml:"batch_rate,omitempty"`
	ResolveIdentity bool    `json:"resolve_identity,omitempty" yaml:"resolve_identity,omitempty"`
	CAFile          string  `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	InsecureSkipTLS bool    `json:"insecure_skip_tls_verify,omitempty" yaml:"insecure_skip_tls_verify,omitempty"`
}

type AuditConfig struct {
	Log     bool           `json:"log,omitempty" yaml:"log,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	Kafka   *KafkaConfig   `json:"kafka,omitempty" yaml:"kafka,omitempty"`
}

type WebhookConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type KafkaConfig struct {
	Brokers       []string `json:"brokers" yaml:"brokers"`
	Topic         string   `json:"topic" yaml:"topic"`
	ClientID      string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	TLS           bool     `json:"tls,omitempty" yaml:"tls,omitempty"`
	SASLMechanism string   `json:"sasl_mechanism,omitempty" yaml:"sasl_mechanism,omitempty"`
	SASLUsername  string   `json:"sasl_username,omitempty" yaml:"sasl_username,omitempty"`
	SASLPassword  string   `json:"sasl_password_env,omitempty" yaml:"sasl_password_env,omitempty"`
}

type MetricsConfig struct {
	Textfile       string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
	PushgatewayURL string `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty"`
	Job            string `json:"job,omitempty" yaml:"job,omitempty"`
}

type MailConfig struct {
	Host               string   `json:"host" yaml:"host"`
	Port               int      `json:"port,omitempty" yaml:"port,omitempty"`
	Username           string   `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordEnv        string   `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	From               string   `json:"from" yaml:"from"`
	To                 []string `json:"to" yaml:"to"`
	Subject            string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
}

type ErrorKind string

const (
	ErrNotFound     ErrorKind = "not_found"
	ErrInvalid      ErrorKind = "invalid"
	ErrMissingField ErrorKind = "missing_field"
)

// Error reports a configuration file that cannot be used.
type Error struct {
	Kind  ErrorKind
	Path  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotFound:
		return fmt.Sprintf("configuration file not found: %s", e.Path)
	case ErrMissingField:
		return fmt.Sprintf("configuration validation error: missing required field: %s", e.Field)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration (%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid configuration in %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads, defaults and validates a configuration file. JSON is the
// default format; .yaml and .yml files are decoded as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Kind: ErrNotFound, Path: path, Err: err}
		}
		return nil, &Error{Kind: ErrInvalid, Path: path, Err: err}
	}
	cfg, err := Parse(content, isYAML(path))
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
			return nil, cfgErr
		}
		return nil, &Error{Kind: ErrInvalid, Path: path, Err: err}
	}
	return cfg, nil
}

func Parse(content []byte, asYAML bool) (*Config, error) {
	var cfg Config
	if asYAML {
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, &Error{Kind: ErrInvalid, Err: fmt.Errorf("failed to parse config: %w", err)}
		}
	} else {
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, &Error{Kind: ErrInvalid, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
	}
	if cfg.Orgs == nil {
		return nil, &Error{Kind: ErrMissingField, Field: "orgs"}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg in the format implied by the file extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	var (
		content []byte
		err     error
	)
	if isYAML(path) {
		content, err = yaml.Marshal(cfg)
	} else {
		content, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) ApplyDefaults() {
	for i := range c.Orgs {
		c.Orgs[i].ApplyDefaults()
	}
	if c.Metrics != nil && c.Metrics.Job == "" {
		c.Metrics.Job = "flowctl"
	}
	if c.Mail != nil && c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
}

func (o *Org) ApplyDefaults() {
	o.Instance = strings.TrimRight(strings.TrimSpace(o.Instance), "/")
	if strings.TrimSpace(o.CleanupType) == "" {
		o.CleanupType = "1"
	}
	if o.FlowNames == nil {
		o.FlowNames = []string{}
	}
	if o.CallbackPort == 0 {
		o.CallbackPort = DefaultCallbackPort
	}
}

// Mode returns the canonical cleanup mode: all, specific or browse.
func (o Org) Mode() (string, error) {
	return ParseCleanupType(o.CleanupType)
}

// ParseCleanupType accepts the numeric menu choices and their names.
func ParseCleanupType(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "1", CleanupAll:
		return CleanupAll, nil
	case "2", CleanupSpecific:
		return CleanupSpecific, nil
	case "3", CleanupBrowse:
		return CleanupBrowse, nil
	}
	return "", fmt.Errorf("unknown cleanup type %q", value)
}

func (c *Config) Validate() error {
	for i, org := range c.Orgs {
		prefix := fmt.Sprintf("orgs[%d]", i)
		if strings.TrimSpace(org.Instance) == "" {
			return &Error{Kind: ErrMissingField, Field: prefix + ".instance"}
		}
		if strings.TrimSpace(org.ClientID) == "" {
			return &Error{Kind: ErrMissingField, Field: prefix + ".client_id"}
		}
		if !strings.HasPrefix(org.Instance, "https://") && !strings.HasPrefix(org.Instance, "http://") {
			return &Error{Kind: ErrInvalid, Field: prefix + ".instance", Err: fmt.Errorf("instance must be an absolute URL: %s", org.Instance)}
		}
		if org.CallbackPort < MinCallbackPort || org.CallbackPort > MaxCallbackPort {
			return &Error{Kind: ErrInvalid, Field: prefix + ".callback_port",
				Err: fmt.Errorf("port %d outside %d-%d", org.CallbackPort, MinCallbackPort, MaxCallbackPort)}
		}
		mode, err := org.Mode()
		if err != nil {
			return &Error{Kind: ErrInvalid, Field: prefix + ".cleanup_type", Err: err}
		}
		if mode == CleanupSpecific && len(org.FlowNames) == 0 {
			return &Error{Kind: ErrMissingField, Field: prefix + ".flow_names"}
		}
	}
	if c.Settings.Timeout != "" {
		d, err := time.ParseDuration(c.Settings.Timeout)
		if err != nil {
			return &Error{Kind: ErrInvalid, Field: "settings.timeout", Err: err}
		}
		if d <= 0 || d > DefaultAuthTimeout {
			return &Error{Kind: ErrInvalid, Field: "settings.timeout", Err: fmt.Errorf("must be positive and at most %s", DefaultAuthTimeout)}
		}
	}
	if c.Settings.BatchRate < 0 {
		return &Error{Kind: ErrInvalid, Field: "settings.batch_rate", Err: errors.New("must not be negative")}
	}
	if c.Audit != nil {
		if c.Audit.Kafka != nil && (len(c.Audit.Kafka.Brokers) == 0 || c.Audit.Kafka.Topic == "") {
			return &Error{Kind: ErrMissingField, Field: "audit.kafka.brokers/topic"}
		}
		if c.Audit.Webhook != nil && c.Audit.Webhook.URL == "" {
			return &Error{Kind: ErrMissingField, Field: "audit.webhook.url"}
		}
	}
	if c.Mail != nil && (c.Mail.Host == "" || c.Mail.From == "" || len(c.Mail.To) == 0) {
		return &Error{Kind: ErrMissingField, Field: "mail.host/from/to"}
	}
	return nil
}

// AuthTimeout is the login deadline. Empty or invalid values yield the
// default, and the default is also the upper bound.
func (s Settings) AuthTimeout() time.Duration {
	if s.Timeout == "" {
		return DefaultAuthTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 || d > DefaultAuthTimeout {
		return DefaultAuthTimeout
	}
	return d
}

// Example returns a configuration suitable as a starting point.
func Example() Config {
	return Config{
		Orgs: []Org{
			{
				Instance:              "https://mycompany--uat.sandbox.my.salesforce.com",
				ClientID:              "YOUR_CONSUMER_KEY",
				ClientSecretEnv:       "FLOWCTL_UAT_CLIENT_SECRET",
				CleanupType:           "1",
				FlowNames:             []string{},
				CallbackPort:          DefaultCallbackPort,
				SkipProductionCheck:   false,
				AutoConfirmProduction: false,
			},
			{
				Instance:     "https://mycompany.my.salesforce.com",
				ClientID:     "YOUR_CONSUMER_KEY",
				CleanupType:  "2",
				FlowNames:    []string{"Order_Sync", "Lead_Assignment"},
				CallbackPort: DefaultCallbackPort,
			},
		},
		Settings: Settings{APIVersion: "v60.0"},
	}
}

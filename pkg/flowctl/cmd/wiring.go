package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/telekom/flowctl/pkg/audit"
	"github.com/telekom/flowctl/pkg/flowctl/auth"
	"github.com/telekom/flowctl/pkg/flowctl/cleanup"
	"github.com/telekom/flowctl/pkg/flowctl/client"
	"github.com/telekom/flowctl/pkg/flowctl/config"
	"github.com/telekom/flowctl/pkg/mail"
	"github.com/telekom/flowctl/pkg/metrics"
	"github.com/telekom/flowctl/pkg/system"
	"github.com/telekom/flowctl/pkg/version"
)

const (
	sessionLayout = "20060102_150405"
	defaultLogDir = "."
)

// openSessionLog creates the per-run log file.
func (rt *runtimeState) openSessionLog(sessionID string) (*system.SessionLog, error) {
	dir := rt.settings().LogDir
	if dir == "" {
		dir = defaultLogDir
	}
	return system.NewLogger(system.LoggerOptions{
		Debug:     rt.debug,
		Verbose:   rt.verbose,
		Dir:       dir,
		SessionID: sessionID,
		Console:   rt.ErrWriter(),
	})
}

func (rt *runtimeState) httpClient() (*http.Client, error) {
	if rt.client == nil {
		settings := rt.settings()
		c, err := client.NewHTTPClient(settings.CAFile, settings.InsecureSkipTLS, client.DefaultTimeout)
		if err != nil {
			return nil, err
		}
		rt.client = c
	}
	return rt.client, nil
}

func (rt *runtimeState) buildAuthenticator(logger *zap.SugaredLogger) (cleanup.Authenticator, error) {
	if rt.authenticator != nil {
		return rt.authenticator, nil
	}
	settings := rt.settings()
	httpClient, err := rt.httpClient()
	if err != nil {
		return nil, err
	}
	a := &auth.Authenticator{
		HTTPClient:     httpClient,
		Logger:         logger.Named("auth"),
		Out:            rt.ProgressWriter(),
		Timeout:        settings.AuthTimeout(),
		LookupIdentity: settings.ResolveIdentity,
	}
	if !rt.noBrowser {
		a.OpenBrowser = auth.OpenBrowser
	}
	return a, nil
}

func (rt *runtimeState) buildClientFactory(logger *zap.SugaredLogger) (cleanup.ClientFactory, error) {
	if rt.newClient != nil {
		return rt.newClient, nil
	}
	settings := rt.settings()
	httpClient, err := rt.httpClient()
	if err != nil {
		return nil, err
	}
	return func(session *auth.Session) (cleanup.OrgAPI, error) {
		return client.New(
			client.WithInstance(session.InstanceURL),
			client.WithToken(session.AccessToken),
			client.WithAPIVersion(settings.APIVersion),
			client.WithHTTPClient(httpClient),
			client.WithUserAgent(version.UserAgent()),
			client.WithLogger(logger.Named("client")),
		)
	}, nil
}

func (rt *runtimeState) buildLimiter() *rate.Limiter {
	if r := rt.settings().BatchRate; r > 0 {
		return rate.NewLimiter(rate.Limit(r), 1)
	}
	return nil
}

// buildAuditSink returns nil when no audit section is configured.
func buildAuditSink(cfg *config.AuditConfig, logger *zap.Logger) (audit.Sink, error) {
	if cfg == nil {
		return nil, nil
	}
	var sinks []audit.Sink
	if cfg.Log {
		sinks = append(sinks, audit.NewLogSink(logger))
	}
	if cfg.Webhook != nil {
		var timeout time.Duration
		if cfg.Webhook.Timeout != "" {
			d, err := time.ParseDuration(cfg.Webhook.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid audit webhook timeout: %w", err)
			}
			timeout = d
		}
		sinks = append(sinks, audit.NewWebhookSink(audit.WebhookSinkConfig{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Timeout: timeout,
		}, logger))
	}
	if cfg.Kafka != nil {
		var password string
		if cfg.Kafka.SASLPassword != "" {
			password = os.Getenv(cfg.Kafka.SASLPassword)
		}
		sink, err := audit.NewKafkaSink(audit.KafkaSinkConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			ClientID:      cfg.Kafka.ClientID,
			TLS:           cfg.Kafka.TLS,
			SASLMechanism: cfg.Kafka.SASLMechanism,
			SASLUsername:  cfg.Kafka.SASLUsername,
			SASLPassword:  password,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return audit.NewMultiSink(sinks, logger), nil
}

func buildMailSender(cfg *config.MailConfig, logger *zap.SugaredLogger) mail.Sender {
	var password string
	if cfg.PasswordEnv != "" {
		password = os.Getenv(cfg.PasswordEnv)
	}
	return mail.NewSender(mail.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           password,
		SenderAddress:      cfg.From,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, logger)
}

// resolveTargets turns the configured orgs into cleanup targets.
func resolveTargets(cfg *config.Config, portOverride int) ([]cleanup.Target, error) {
	targets := make([]cleanup.Target, 0, len(cfg.Orgs))
	for i, org := range cfg.Orgs {
		secret, err := auth.ResolveClientSecret(auth.SecretSource{
			Value:       org.ClientSecret,
			Env:         org.ClientSecretEnv,
			File:        org.ClientSecretFile,
			Keyring:     org.ClientSecretKeyring,
			InstanceURL: org.Instance,
			ClientID:    org.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("orgs[%d] (%s): %w", i, org.Instance, err)
		}
		target, err := cleanup.TargetFromConfig(org, secret)
		if err != nil {
			return nil, err
		}
		if portOverride != 0 {
			target.CallbackPort = portOverride
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// deliverReport mails the run report and exports metrics. Failures are
// logged; the run result stands.
func (rt *runtimeState) deliverReport(ctx context.Context, result *cleanup.RunResult, logger *zap.SugaredLogger, rec *metrics.Recorder) {
	rec.RunCompleted(result.FinishedAt)
	if rt.cfg == nil {
		return
	}
	if m := rt.cfg.Mail; m != nil {
		err := sendRunReport(buildMailSender(m, logger), m, result)
		rec.MailSent(err)
		if err != nil {
			logger.Warnw("Failed to send run report", "error", err)
		} else {
			logger.Infow("Run report sent", "receivers", len(m.To))
		}
	}
	if m := rt.cfg.Metrics; m != nil {
		if m.Textfile != "" {
			if err := rec.WriteTextfile(m.Textfile); err != nil {
				logger.Warnw("Failed to write metrics", "error", err)
			}
		}
		if m.PushgatewayURL != "" {
			if err := rec.Push(ctx, m.PushgatewayURL, m.Job, result.RunID); err != nil {
				logger.Warnw("Failed to push metrics", "error", err)
			}
		}
	}
}

func reportParams(result *cleanup.RunResult) mail.RunReportParams {
	params := mail.RunReportParams{
		RunID:      result.RunID,
		Operator:   operatorName(),
		StartedAt:  result.StartedAt.Format(time.RFC1123),
		FinishedAt: result.FinishedAt.Format(time.RFC1123),
		DryRun:     result.DryRun,
		Succeeded:  result.Succeeded,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
	}
	for _, org := range result.Orgs {
		params.Orgs = append(params.Orgs, mail.OrgReport{
			Instance:   org.Instance,
			OrgName:    org.OrgName,
			Production: org.Production,
			Outcome:    string(org.Outcome),
			Reason:     org.Reason,
			Planned:    org.Planned,
			Deleted:    org.Deleted(),
			Failed:     org.DeleteFailed(),
			PlanFile:   org.PlanFile,
		})
	}
	return params
}

func sendRunReport(sender mail.Sender, cfg *config.MailConfig, result *cleanup.RunResult) error {
	body, err := mail.RenderRunReport(reportParams(result))
	if err != nil {
		return fmt.Errorf("failed to render run report: %w", err)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("flowctl run %s: %d succeeded, %d skipped, %d failed",
			result.RunID, result.Succeeded, result.Skipped, result.Failed)
	}
	return sender.Send(cfg.To, subject, body)
}

func operatorName() string {
	actor := audit.LocalActor()
	if actor.Host != "" {
		return actor.User + "@" + strings.SplitN(actor.Host, ".", 2)[0]
	}
	return actor.User
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/telekom/flowctl/pkg/system"
)

const (
	DefaultTimeout          = 300 * time.Second
	DefaultProgressInterval = 15 * time.Second

	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
	stopTimeout   = 5 * time.Second
)

var defaultScopes = []string{"api", "refresh_token"}

// Request identifies the org and Connected App for one login.
type Request struct {
	InstanceURL  string
	ClientID     string
	ClientSecret string
	// Port of the loopback listener; 0 picks a free port.
	Port int
}

// Session holds the access token of one org. It is never persisted.
type Session struct {
	AccessToken string    `json:"-" yaml:"-"`
	InstanceURL string    `json:"instance_url" yaml:"instance_url"`
	TokenType   string    `json:"token_type" yaml:"token_type"`
	IssuedAt    time.Time `json:"issued_at" yaml:"issued_at"`
	Identity    *Identity `json:"identity,omitempty" yaml:"identity,omitempty"`
}

// Authenticator runs the authorization code flow with PKCE. The zero value
// is usable; unset fields fall back to defaults.
type Authenticator struct {
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
	// Out receives the user-facing progress messages.
	Out io.Writer
	// OpenBrowser launches the authorization URL. Failures are not fatal.
	OpenBrowser func(string) error
	// Timeout bounds the wait for the callback; zero or values above
	// DefaultTimeout use DefaultTimeout.
	Timeout          time.Duration
	ProgressInterval time.Duration
	// LookupIdentity fetches the userinfo document after login.
	LookupIdentity bool
}

func (a *Authenticator) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}

func (a *Authenticator) out() io.Writer {
	if a.Out == nil {
		return io.Discard
	}
	return a.Out
}

func (a *Authenticator) timeout() time.Duration {
	if a.Timeout <= 0 || a.Timeout > DefaultTimeout {
		return DefaultTimeout
	}
	return a.Timeout
}

func (a *Authenticator) progressInterval() time.Duration {
	if a.ProgressInterval <= 0 {
		return DefaultProgressInterval
	}
	return a.ProgressInterval
}

func oauthConfig(req Request, redirectURL string) *oauth2.Config {
	instance := strings.TrimRight(req.InstanceURL, "/")
	return &oauth2.Config{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   instance + authorizePath,
			TokenURL:  instance + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      defaultScopes,
	}
}

// Authenticate performs one full login round trip. The callback listener is
// stopped before it returns, whatever the outcome.
func (a *Authenticator) Authenticate(ctx context.Context, req Request) (*Session, error) {
	log := a.logger()
	out := a.out()
	if req.ClientID == "" {
		return nil, &Failure{Kind: FailureNoClientID, Message: "client id is required"}
	}
	port := req.Port
	verifier, challenge, err := newPKCEPair()
	if err != nil {
		return nil, err
	}

	log.Infow("Starting authentication",
		"instance", req.InstanceURL,
		"client_id_prefix", system.MaskPrefix(req.ClientID),
		"port", port)
	listener, err := StartCallbackListener(port)
	if err != nil {
		if errors.Is(err, ErrPortInUse) {
			log.Warnw("Callback port already in use", "port", port)
			return nil, &Failure{Kind: FailurePortInUse, Message: fmt.Sprintf("port %d is already in use", port), Port: port, Err: err}
		}
		log.Errorw("Failed to start callback listener", "port", port, "error", err)
		return nil, &Failure{Kind: FailureListenerStart, Message: fmt.Sprintf("failed to start server on port %d", port), Port: port, Err: err}
	}
	_, _ = fmt.Fprintf(out, "Local callback server listening on port %d\n", listener.Port())
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := listener.Stop(stopCtx); err != nil {
			log.Debugw("Callback listener did not stop cleanly", "error", err)
		}
	}()

	cfg := oauthConfig(req, listener.RedirectURL())
	authURL := cfg.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	_, _ = fmt.Fprintf(out, "Open the following URL in your browser:\n%s\n", authURL)
	_, _ = fmt.Fprintln(out, "Waiting for you to complete authentication in your browser...")
	if a.OpenBrowser != nil {
		if err := a.OpenBrowser(authURL); err != nil {
			log.Debugw("Failed to open browser", "error", err)
		}
	}

	code, err := a.waitForCallback(ctx, listener)
	if err != nil {
		log.Warnw("Authorization not completed", "error", err)
		return nil, err
	}
	_, _ = fmt.Fprintln(out, "Authorization code received.")
	log.Debug("Authorization code received")

	if a.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	}
	token, err := cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		failure := classifyExchangeError(err)
		log.Errorw("Token exchange failed", "kind", failure.Kind, "error", failure.Message)
		return nil, failure
	}

	session := &Session{
		AccessToken: token.AccessToken,
		InstanceURL: strings.TrimRight(req.InstanceURL, "/"),
		TokenType:   token.Type(),
		IssuedAt:    time.Now().UTC(),
	}
	if a.LookupIdentity {
		identity, err := lookupIdentity(ctx, a.HTTPClient, session.InstanceURL, token)
		if err != nil {
			log.Warnw("Identity lookup failed", "error", err)
		} else {
			session.Identity = identity
		}
	}
	log.Infow("Authentication successful", "instance", session.InstanceURL)
	return session, nil
}

func (a *Authenticator) waitForCallback(ctx context.Context, listener *CallbackListener) (string, error) {
	timeout := a.timeout()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.progressInterval())
	defer ticker.Stop()
	started := time.Now()

	for {
		select {
		case result := <-listener.Result():
			if result.Error != "" {
				return "", &Failure{Kind: FailureOAuth, Message: result.Error}
			}
			return result.Code, nil
		case <-ticker.C:
			remaining := timeout - time.Since(started)
			if remaining < 0 {
				remaining = 0
			}
			_, _ = fmt.Fprintf(a.out(), "Still waiting for authentication... (%d seconds remaining)\n", int(remaining.Seconds()))
		case <-deadline.C:
			return "", &Failure{Kind: FailureTimeout, Message: fmt.Sprintf("no callback received within %s", timeout)}
		case <-ctx.Done():
			return "", &Failure{Kind: FailureTimeout, Message: "authentication cancelled", Err: ctx.Err()}
		}
	}
}

// The token endpoint either refused the grant, could not be reached, or
// answered with something that is not a usable token.
func classifyExchangeError(err error) *Failure {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		message := retrieveErr.ErrorCode
		if retrieveErr.ErrorDescription != "" {
			message += ": " + retrieveErr.ErrorDescription
		}
		if message == "" && retrieveErr.Response != nil {
			message = retrieveErr.Response.Status
		}
		return &Failure{Kind: FailureTokenExchange, Message: message, Err: err}
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &Failure{Kind: FailureTokenExchange, Message: "token endpoint unreachable", Err: err}
	}
	return &Failure{Kind: FailureMalformedToken, Message: "invalid token response", Err: err}
}

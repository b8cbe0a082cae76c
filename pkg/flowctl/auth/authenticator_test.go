package auth

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telekom/flowctl/pkg/system"
)

type tokenRequest struct {
	form url.Values
}

type fakeSalesforce struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []tokenRequest

	tokenStatus int
	tokenBody   string
	tokenType   string
}

func newFakeSalesforce(t *testing.T) *fakeSalesforce {
	t.Helper()
	f := &fakeSalesforce{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"00Dxx0000001gPL!AQ4AQFakeAccessTokenValue","token_type":"Bearer","instance_url":"https://acme.my.salesforce.com"}`,
		tokenType:   "application/json",
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/oauth2/token":
			require.NoError(t, r.ParseForm())
			f.mu.Lock()
			f.requests = append(f.requests, tokenRequest{form: r.PostForm})
			f.mu.Unlock()
			w.Header().Set("Content-Type", f.tokenType)
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(f.tokenBody))
		case "/services/oauth2/userinfo":
			assert.Equal(t, "Bearer 00Dxx0000001gPL!AQ4AQFakeAccessTokenValue", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"sub":                "https://login.salesforce.com/id/00D/005",
				"email":              "admin@acme.test",
				"preferred_username": "admin@acme.test.uat",
				"organization_id":    "00Dxx0000001gPL",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeSalesforce) tokenRequests() []tokenRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tokenRequest(nil), f.requests...)
}

// browserRedirecting simulates the user approving (or denying) the login by
// calling the redirect_uri with the given query.
func browserRedirecting(t *testing.T, query url.Values, seen *url.URL) func(string) error {
	return func(raw string) error {
		authURL, err := url.Parse(raw)
		require.NoError(t, err)
		*seen = *authURL
		redirect := authURL.Query().Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirect + "?" + query.Encode())
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func assertPortFree(t *testing.T, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:"+itoa(port))
	require.NoError(t, err, "callback port %d still bound", port)
	require.NoError(t, ln.Close())
}

func TestAuthenticateSuccess(t *testing.T) {
	sf := newFakeSalesforce(t)
	var authURL url.URL
	core, logs := observer.New(zapcore.DebugLevel)
	a := &Authenticator{
		HTTPClient:  sf.server.Client(),
		Logger:      zap.New(system.NewRedactingCore(core)).Sugar(),
		OpenBrowser: browserRedirecting(t, url.Values{"code": {"aPrx4sgoM2Nd1zWeFVlOWveD0HhYmiDiLmlLnXEBgX01tpVOQMWVSUuafFPHu3kCSjzk4CUTZg=="}}, &authURL),
		Timeout:     5 * time.Second,
	}

	port := freePort(t)
	session, err := a.Authenticate(context.Background(), Request{
		InstanceURL: sf.server.URL + "/",
		ClientID:    "3MVG9fakeConsumerKeyForTests",
		Port:        port,
	})
	require.NoError(t, err)
	assertPortFree(t, port)
	assert.Equal(t, "00Dxx0000001gPL!AQ4AQFakeAccessTokenValue", session.AccessToken)
	assert.Equal(t, sf.server.URL, session.InstanceURL)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.False(t, session.IssuedAt.IsZero())
	assert.Nil(t, session.Identity)

	query := authURL.Query()
	assert.Equal(t, "/services/oauth2/authorize", authURL.Path)
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "3MVG9fakeConsumerKeyForTests", query.Get("client_id"))
	assert.Equal(t, "api refresh_token", query.Get("scope"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.False(t, query.Has("state"))

	requests := sf.tokenRequests()
	require.Len(t, requests, 1)
	form := requests[0].form
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "3MVG9fakeConsumerKeyForTests", form.Get("client_id"))
	assert.Equal(t, query.Get("redirect_uri"), form.Get("redirect_uri"))
	assert.False(t, form.Has("client_secret"))

	// The verifier sent to the token endpoint hashes to the challenge
	// sent to the authorize endpoint.
	verifier := form.Get("code_verifier")
	assert.Len(t, verifier, 43)
	assert.Equal(t, query.Get("code_challenge"), pkceChallenge(verifier))

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, "AQ4AQFakeAccessTokenValue")
		for _, field := range entry.Context {
			assert.NotContains(t, field.String, "3MVG9fakeConsumerKeyForTests")
			assert.NotContains(t, field.String, "AQ4AQFakeAccessTokenValue")
		}
	}
}

func TestAuthenticateSendsClientSecret(t *testing.T) {
	sf := newFakeSalesforce(t)
	var authURL url.URL
	a := &Authenticator{
		HTTPClient:     sf.server.Client(),
		OpenBrowser:    browserRedirecting(t, url.Values{"code": {"abc"}}, &authURL),
		Timeout:        5 * time.Second,
		LookupIdentity: true,
	}

	session, err := a.Authenticate(context.Background(), Request{
		InstanceURL:  sf.server.URL,
		ClientID:     "client",
		ClientSecret: "s3cr3t",
	})
	require.NoError(t, err)
	require.Len(t, sf.tokenRequests(), 1)
	assert.Equal(t, "s3cr3t", sf.tokenRequests()[0].form.Get("client_secret"))

	require.NotNil(t, session.Identity)
	assert.Equal(t, "admin@acme.test.uat", session.Identity.Actor())
	assert.Equal(t, "00Dxx0000001gPL", session.Identity.OrganizationID)
}

func TestAuthenticateFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		callback    url.Values
		wantKind    FailureKind
		wantMessage string
	}{
		{
			name:        "user denied",
			callback:    url.Values{"error": {"access_denied"}, "error_description": {"end-user denied authorization"}},
			wantKind:    FailureOAuth,
			wantMessage: "access_denied: end-user denied authorization",
		},
		{
			name:        "token endpoint rejects code",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":"invalid_grant","error_description":"authentication failure"}`,
			callback:    url.Values{"code": {"abc"}},
			wantKind:    FailureTokenExchange,
			wantMessage: "invalid_grant: authentication failure",
		},
		{
			name:        "unparsable token body",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{not json`,
			callback:    url.Values{"code": {"abc"}},
			wantKind:    FailureMalformedToken,
		},
		{
			name:        "missing access token",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"token_type":"Bearer"}`,
			callback:    url.Values{"code": {"abc"}},
			wantKind:    FailureMalformedToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sf := newFakeSalesforce(t)
			if tt.status != 0 {
				sf.tokenStatus = tt.status
				sf.tokenBody = tt.body
				sf.tokenType = tt.contentType
			}
			var authURL url.URL
			a := &Authenticator{
				HTTPClient:  sf.server.Client(),
				OpenBrowser: browserRedirecting(t, tt.callback, &authURL),
				Timeout:     5 * time.Second,
			}

			port := freePort(t)
			session, err := a.Authenticate(context.Background(), Request{InstanceURL: sf.server.URL, ClientID: "client", Port: port})
			require.Error(t, err)
			assert.Nil(t, session)
			assertPortFree(t, port)

			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.wantKind, failure.Kind)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, failure.Message)
			}
		})
	}
}

func TestAuthenticateNoClientID(t *testing.T) {
	a := &Authenticator{}
	_, err := a.Authenticate(context.Background(), Request{InstanceURL: "https://acme.my.salesforce.com"})
	assert.True(t, IsFailure(err, FailureNoClientID))
}

func TestAuthenticatePortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer func() {
		_ = taken.Close()
	}()
	port := taken.Addr().(*net.TCPAddr).Port

	a := &Authenticator{}
	_, err = a.Authenticate(context.Background(), Request{InstanceURL: "https://acme.my.salesforce.com", ClientID: "client", Port: port})

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailurePortInUse, failure.Kind)
	assert.Equal(t, port, failure.Port)
	assert.Contains(t, failure.Hint(), "lsof -i :"+itoa(port))
	assert.Contains(t, failure.Hint(), "netstat -ano | findstr :"+itoa(port))
}

func TestAuthenticateTimeoutReleasesPort(t *testing.T) {
	port := freePort(t)
	var opened []string
	a := &Authenticator{
		OpenBrowser: func(u string) error {
			opened = append(opened, u)
			return assert.AnError
		},
		Timeout:          150 * time.Millisecond,
		ProgressInterval: 50 * time.Millisecond,
	}

	started := time.Now()
	_, err := a.Authenticate(context.Background(), Request{InstanceURL: "https://acme.my.salesforce.com", ClientID: "client", Port: port})
	assert.True(t, IsFailure(err, FailureTimeout))
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Len(t, opened, 1)
	assertPortFree(t, port)
}

func TestAuthenticateContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Authenticator{
		OpenBrowser: func(string) error {
			cancel()
			return nil
		},
		Timeout: 5 * time.Second,
	}

	_, err := a.Authenticate(ctx, Request{InstanceURL: "https://acme.my.salesforce.com", ClientID: "client"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, FailureTimeout, failure.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthenticateCancelledContextReleasesPort(t *testing.T) {
	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &Authenticator{
		OpenBrowser: func(string) error { return nil },
		Timeout:     5 * time.Second,
	}
	req := Request{InstanceURL: "https://acme.my.salesforce.com", ClientID: "client", Port: port}

	// A retry on the same port right after a cancelled login must get the
	// listener again rather than a port-in-use failure.
	for i := 0; i < 10; i++ {
		_, err := a.Authenticate(ctx, req)
		var failure *Failure
		require.ErrorAs(t, err, &failure)
		require.Equal(t, FailureTimeout, failure.Kind, "attempt %d", i)
	}
	assertPortFree(t, port)
}

func TestAuthenticatorTimeoutCapped(t *testing.T) {
	assert.Equal(t, DefaultTimeout, (&Authenticator{}).timeout())
	assert.Equal(t, DefaultTimeout, (&Authenticator{Timeout: 10 * time.Minute}).timeout())
	assert.Equal(t, 30*time.Second, (&Authenticator{Timeout: 30 * time.Second}).timeout())
}

func TestPKCEPair(t *testing.T) {
	verifier, challenge, err := newPKCEPair()
	require.NoError(t, err)
	assert.Len(t, verifier, 43)
	assert.Len(t, challenge, 43)
	assert.NotContains(t, verifier, "=")
	assert.Equal(t, challenge, pkceChallenge(verifier))

	// RFC 7636 appendix B.
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", pkceChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	other, _, err := newPKCEPair()
	require.NoError(t, err)
	assert.NotEqual(t, verifier, other)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

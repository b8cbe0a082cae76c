package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAPIVersion is the REST API version used for all requests.
	DefaultAPIVersion = "v60.0"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second
)

type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	userAgent  string
	apiVersion string
	logger     *zap.SugaredLogger
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		http:       &http.Client{Timeout: DefaultTimeout},
		userAgent:  "flowctl",
		apiVersion: DefaultAPIVersion,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("instance url is required")
	}
	return c, nil
}

func WithInstance(instanceURL string) Option {
	return func(c *Client) error {
		if instanceURL == "" {
			return errors.New("instance url is required")
		}
		parsed, err := url.Parse(instanceURL)
		if err != nil {
			return fmt.Errorf("invalid instance url: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid instance url: %s", instanceURL)
		}
		c.baseURL = parsed
		return nil
	}
}

func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithAPIVersion(version string) Option {
	return func(c *Client) error {
		if version == "" {
			return nil
		}
		if !strings.HasPrefix(version, "v") {
			version = "v" + version
		}
		c.apiVersion = version
		return nil
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client is nil")
		}
		c.http = httpClient
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout > 0 {
			c.http.Timeout = timeout
		}
		return nil
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// NewHTTPClient builds an HTTP client honouring a custom CA bundle and the
// insecure flag. It is shared by the OAuth flow and the API client.
func NewHTTPClient(caFile string, insecure bool, timeout time.Duration) (*http.Client, error) {
	tlsConfig, err := loadTLSConfig(caFile, insecure)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment}, Timeout: timeout}, nil
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// InstanceURL returns the instance the client talks to.
func (c *Client) InstanceURL() string {
	return c.baseURL.String()
}

// APIVersion returns the REST API version segment, e.g. v60.0.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	fullURL := *c.baseURL
	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	fullURL.Path = path.Join("/", fullURL.Path, parsedEndpoint.Path)
	fullURL.RawQuery = parsedEndpoint.RawQuery

	var payload io.Reader
	if body != nil {
		bytesBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(bytesBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debugw("Salesforce request failed", "method", method, "path", fullURL.Path, "error", err)
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debugw("Salesforce request completed",
		"method", method,
		"path", fullURL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Salesforce reports REST errors as an array of {message, errorCode}; the
// OAuth endpoints use {error, error_description}.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	var restErrs []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	var oauthErr struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	switch {
	case len(body) > 0 && json.Unmarshal(body, &restErrs) == nil && len(restErrs) > 0:
		httpErr.ErrorCode = restErrs[0].ErrorCode
		httpErr.Message = strings.TrimSpace(restErrs[0].Message)
	case len(body) > 0 && json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "":
		httpErr.ErrorCode = oauthErr.Error
		httpErr.Message = strings.TrimSpace(oauthErr.Description)
	}
	if httpErr.Message == "" {
		httpErr.Message = httpErr.Body
	}
	if httpErr.Message == "" {
		httpErr.Message = resp.Status
	}
	return httpErr
}

type HTTPError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("request failed (%d %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

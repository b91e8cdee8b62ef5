// Package npm is a typed client for the Nginx Proxy Manager admin API.
package npm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/npmctl/internal/token"
)

const contentType = "application/json; charset=UTF-8"

// Client wraps the NPM admin API. It holds no session state in memory;
// the cached credential is re-read from the token store on every call, so
// a long-running process never sends a stale token.
type Client struct {
	baseURL    string
	store      *token.Store
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

// WithTimeout overrides the default 30s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Tests use this to
// inject recording transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the NPM API at baseURL. The store supplies the
// bearer token; Login is the only method that writes to it.
func New(baseURL string, store *token.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		store:   store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	Token   string `json:"token" validate:"required"`
	Expires string `json:"expires" validate:"required"`
}

// Login authenticates against POST /api/tokens and caches the returned
// bearer token. Authentication failures are reported verbatim, never
// retried.
func (c *Client) Login(ctx context.Context, identity, secret string) (*token.Credential, error) {
	body, err := json.Marshal(map[string]string{
		"identity": identity,
		"secret":   secret,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tokens", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Message:    "authentication failed",
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	var parsed loginResponse
	if err := decodeOne(respBody, &parsed); err != nil {
		return nil, err
	}

	expires, err := time.Parse(time.RFC3339, parsed.Expires)
	if err != nil {
		return nil, schemaChanged(fmt.Errorf("parse token expiry %q: %w", parsed.Expires, err))
	}

	cred := token.Credential{Token: parsed.Token, Expires: expires}
	if err := c.store.Save(cred); err != nil {
		return nil, fmt.Errorf("cache token: %w", err)
	}

	c.logger.Debug().Time("expires", expires).Msg("token cached")
	return &cred, nil
}

type response struct {
	status int
	body   []byte
}

// do issues an authenticated request. The credential is loaded and
// checked before any network I/O; a missing or expired token fails with
// ErrNotAuthenticated without touching the wire. Non-2xx statuses are
// returned to the caller for operation-specific mapping.
func (c *Client) do(ctx context.Context, method, path string, body any) (*response, error) {
	cred := c.store.Load()
	if cred == nil || !cred.Valid(time.Now()) {
		return nil, ErrNotAuthenticated
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug().Str("method", method).Str("path", path).Msg("NPM API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &response{status: resp.StatusCode, body: respBody}, nil
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// apiErr builds the uniform non-2xx error for an operation, preserving
// the raw response for inspection.
func (r *response) apiErr(message string) error {
	return &APIError{Message: message, StatusCode: r.status, Body: r.body}
}

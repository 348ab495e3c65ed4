// Package backend provides the per-request client for a vault's detect API.
//
// A Client is built for exactly one gateway request from the caller's
// credentials and the resolved vault configuration. It owns its own HTTP
// transport so that closing it never affects another in-flight request.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rhuss/vaultgate/pkg/debug"
	"github.com/rhuss/vaultgate/pkg/observability"
	"github.com/rhuss/vaultgate/pkg/vault"
)

// ErrInvalidCredentials is returned by New when the credentials cannot be
// used to build a client at all.
var ErrInvalidCredentials = errors.New("invalid backend credentials")

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("backend client closed")

// Credentials is the shape the backend expects: exactly one of Token or
// APIKey is set.
type Credentials struct {
	Token  string
	APIKey string
}

func (c Credentials) secret() (string, error) {
	switch {
	case c.Token != "" && c.APIKey != "":
		return "", fmt.Errorf("%w: both token and api key set", ErrInvalidCredentials)
	case c.Token != "":
		return c.Token, checkSecret(c.Token)
	case c.APIKey != "":
		return c.APIKey, checkSecret(c.APIKey)
	default:
		return "", fmt.Errorf("%w: no token or api key", ErrInvalidCredentials)
	}
}

// checkSecret rejects values that cannot travel in an Authorization header.
func checkSecret(s string) error {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: credential contains whitespace or control characters", ErrInvalidCredentials)
		}
	}
	return nil
}

// Handle is what a gateway request holds on to for its lifetime.
type Handle interface {
	Deidentify(ctx context.Context, text string) (*DeidentifyResult, error)
	Reidentify(ctx context.Context, text string) (string, error)
	Close() error
}

// Config holds everything needed to build a Client.
type Config struct {
	Credentials Credentials
	Vault       *vault.Config

	// BaseURL overrides the URL derived from the vault's cluster ID.
	BaseURL string

	// Timeout bounds each backend call. Default: 60s.
	Timeout time.Duration
}

// Client talks to one vault on behalf of one request.
type Client struct {
	baseURL     string
	secret      string
	vaultID     string
	accountID   string
	workspaceID string

	transport  *http.Transport
	httpClient *http.Client

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ Handle = (*Client)(nil)

// New builds a Client. It fails when the credentials are malformed or the
// vault configuration is incomplete.
func New(cfg Config) (*Client, error) {
	secret, err := cfg.Credentials.secret()
	if err != nil {
		return nil, err
	}
	if cfg.Vault == nil || cfg.Vault.VaultID == "" || cfg.Vault.ClusterID == "" {
		return nil, fmt.Errorf("backend: vault id and cluster id are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + cfg.Vault.ClusterID + ".vault.skyflowapis.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &Client{
		baseURL:     baseURL,
		secret:      secret,
		vaultID:     cfg.Vault.VaultID,
		accountID:   cfg.Vault.AccountID,
		workspaceID: cfg.Vault.WorkspaceID,
		transport:   transport,
		httpClient:  &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Entity is a single sensitive span found by the detect API.
type Entity struct {
	Token      string  `json:"token"`
	Value      string  `json:"value"`
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score,omitempty"`
}

// DeidentifyResult is the detect API's answer to a deidentify call.
type DeidentifyResult struct {
	ProcessedText  string   `json:"processed_text"`
	Entities       []Entity `json:"entities"`
	WordCount      int      `json:"word_count"`
	CharacterCount int      `json:"character_count"`
}

type stringRequest struct {
	Text    string `json:"text"`
	VaultID string `json:"vault_id"`
}

type reidentifyResponse struct {
	ProcessedText string `json:"processed_text"`
}

// Deidentify replaces sensitive data in text with vault tokens.
func (c *Client) Deidentify(ctx context.Context, text string) (*DeidentifyResult, error) {
	var out DeidentifyResult
	if err := c.post(ctx, "deidentify", "/v1/detect/deidentify/string", stringRequest{Text: text, VaultID: c.vaultID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reidentify restores the original values behind vault tokens in text.
func (c *Client) Reidentify(ctx context.Context, text string) (string, error) {
	var out reidentifyResponse
	if err := c.post(ctx, "reidentify", "/v1/detect/reidentify/string", stringRequest{Text: text, VaultID: c.vaultID}, &out); err != nil {
		return "", err
	}
	return out.ProcessedText, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if c.accountID != "" {
		req.Header.Set("X-SKYFLOW-ACCOUNT-ID", c.accountID)
	}
	if c.workspaceID != "" {
		req.Header.Set("X-SKYFLOW-WORKSPACE-ID", c.workspaceID)
	}

	debug.Log("backend", "request", "op", op, "url", req.URL.String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.BackendRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)
	observability.BackendLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	debug.Trace("backend", "response", "op", op, "status", resp.StatusCode, "elapsed", elapsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.BackendRequestsTotal.WithLabelValues(op, "error").Inc()
		return &StatusError{StatusCode: resp.StatusCode, Message: extractErrorMessage(resp.Body)}
	}
	observability.BackendRequestsTotal.WithLabelValues(op, "ok").Inc()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// Close releases the client's connections. Calls after the first are no-ops.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.transport.CloseIdleConnections()
	})
	return nil
}

// StatusError is a non-2xx answer from the detect API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// extractErrorMessage pulls error.message out of a JSON error body, falling
// back to the raw body text.
func extractErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return debug.Truncate(strings.TrimSpace(string(data)), 512)
}

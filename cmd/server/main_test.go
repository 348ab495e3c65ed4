package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/vaultgate/pkg/config"
	"github.com/rhuss/vaultgate/pkg/tools"
	transporthttp "github.com/rhuss/vaultgate/pkg/transport/http"
)

const testVaultURL = "https://abc123.vault.skyflowapis.com"

// fakeDetectAPI answers deidentify calls and records the auth header it saw.
func fakeDetectAPI(t *testing.T, seenAuth *string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seenAuth = r.Header.Get("Authorization")
		var in struct {
			Text    string `json:"text"`
			VaultID string `json:"vault_id"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"processed_text": "[" + in.VaultID + "] " + strings.ToUpper(in.Text),
			"entities":       []any{},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestGatewayServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	limiter, err := newLimiter(cfg)
	if err != nil {
		t.Fatalf("newLimiter: %v", err)
	}
	gw, err := newGateway(cfg, limiter, nil)
	if err != nil {
		t.Fatalf("newGateway: %v", err)
	}
	srv := transporthttp.NewServer(tools.Handler("test", nil), gw.Middleware)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// headerTransport adds a fixed Authorization header to every request.
type headerTransport struct {
	value string
}

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", h.value)
	return http.DefaultTransport.RoundTrip(r)
}

func TestEndToEndAuthenticatedDehydrate(t *testing.T) {
	var seenAuth string
	detect := fakeDetectAPI(t, &seenAuth)

	cfg := config.Defaults()
	cfg.Backend.URL = detect.URL
	ts := newTestGatewayServer(t, &cfg)

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e", Version: "1.0.0"}, nil)
	cs, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint:             ts.URL + transporthttp.MCPPath + "?vaultId=v1&vaultUrl=" + testVaultURL,
		HTTPClient:           &http.Client{Transport: headerTransport{value: "Bearer aaa.bbb.ccc"}, Timeout: 5 * time.Second},
		DisableStandaloneSSE: true,
	}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "dehydrate",
		Arguments: map[string]any{"text": "jane"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}

	text := res.Content[0].(*mcp.TextContent).Text
	if !strings.Contains(text, "[v1] JANE") {
		t.Errorf("result = %q, want processed text from vault v1", text)
	}
	if seenAuth != "Bearer aaa.bbb.ccc" {
		t.Errorf("backend saw Authorization %q", seenAuth)
	}
}

func TestEndToEndMissingCredentials(t *testing.T) {
	cfg := config.Defaults()
	ts := newTestGatewayServer(t, &cfg)

	resp, err := http.Post(ts.URL+transporthttp.MCPPath, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEndToEndAnonymousRateLimit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Anonymous.APIKey = "sky-anon-key"
	cfg.Anonymous.VaultID = "anonvault"
	cfg.Anonymous.VaultURL = testVaultURL
	cfg.Anonymous.RateLimitRequests = 2
	ts := newTestGatewayServer(t, &cfg)

	var statuses []int
	var last *http.Response
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+transporthttp.MCPPath, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST %d: %v", i, err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
		last = resp
	}

	if statuses[0] == http.StatusTooManyRequests || statuses[1] == http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want the first two admitted", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("third status = %d, want 429", statuses[2])
	}
	if last.Header.Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}
	if got := last.Header.Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("output = %q, want %q", out.String(), version)
	}
}

func TestCheckConfigCommand(t *testing.T) {
	t.Setenv("ANON_MODE_RATE_LIMIT_REQUESTS", "not-a-number")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--config", writeConfig(t, "{}")})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for non-numeric rate limit")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := t.TempDir() + "/config.yaml"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

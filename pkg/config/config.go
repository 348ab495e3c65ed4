// Package config provides unified configuration for the vaultgate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. A .env file, for variables not already set in the environment
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import (
	"log/slog"
	"time"

	"github.com/rhuss/vaultgate/pkg/vault"
)

// Config holds all configuration for the vaultgate gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Anonymous     AnonymousConfig     `yaml:"anonymous"`
	Vault         VaultConfig         `yaml:"vault"`
	Backend       BackendConfig       `yaml:"backend"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"             env:"VAULTGATE_PORT"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"VAULTGATE_READ_TIMEOUT"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"VAULTGATE_WRITE_TIMEOUT"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"VAULTGATE_SHUTDOWN_TIMEOUT"` // default: 15s
}

// AnonymousConfig holds the settings for unauthenticated access. Anonymous
// mode is on only when the API key, vault ID and vault URL are all set.
type AnonymousConfig struct {
	APIKey            string        `yaml:"api_key"              env:"ANON_MODE_API_KEY"`
	APIKeyFile        string        `yaml:"api_key_file"         env:"ANON_MODE_API_KEY_FILE"`
	VaultID           string        `yaml:"vault_id"             env:"ANON_MODE_VAULT_ID"`
	VaultURL          string        `yaml:"vault_url"            env:"ANON_MODE_VAULT_URL"`
	RateLimitRequests int           `yaml:"rate_limit_requests"  env:"ANON_MODE_RATE_LIMIT_REQUESTS"`  // default: 10
	RateLimitWindowMS int           `yaml:"rate_limit_window_ms" env:"ANON_MODE_RATE_LIMIT_WINDOW_MS"` // default: 60000
	SweepInterval     time.Duration `yaml:"sweep_interval"       env:"ANON_MODE_SWEEP_INTERVAL"`       // default: 60s
}

// Enabled reports whether anonymous mode is fully configured.
func (a AnonymousConfig) Enabled() bool {
	return a.APIKey != "" && a.VaultID != "" && a.VaultURL != ""
}

// Window returns the rate-limit window as a duration.
func (a AnonymousConfig) Window() time.Duration {
	return time.Duration(a.RateLimitWindowMS) * time.Millisecond
}

// VaultParams returns the anonymous vault as request parameters.
func (a AnonymousConfig) VaultParams() vault.Params {
	return vault.Params{VaultID: a.VaultID, VaultURL: a.VaultURL}
}

// VaultConfig holds server-side vault defaults, used for any field a
// request does not supply.
type VaultConfig struct {
	VaultID     string `yaml:"vault_id"     env:"VAULT_ID"`
	VaultURL    string `yaml:"vault_url"    env:"VAULT_URL"`
	AccountID   string `yaml:"account_id"   env:"ACCOUNT_ID"`
	WorkspaceID string `yaml:"workspace_id" env:"WORKSPACE_ID"`
}

// Params returns the defaults as request parameters.
func (v VaultConfig) Params() vault.Params {
	return vault.Params{
		VaultID:     v.VaultID,
		VaultURL:    v.VaultURL,
		AccountID:   v.AccountID,
		WorkspaceID: v.WorkspaceID,
	}
}

// BackendConfig holds settings for the per-request detect API client.
type BackendConfig struct {
	// URL overrides the base URL derived from the vault cluster.
	URL     string        `yaml:"url"     env:"VAULTGATE_BACKEND_URL"`
	Timeout time.Duration `yaml:"timeout" env:"VAULTGATE_BACKEND_TIMEOUT"` // default: 30s
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"VAULTGATE_METRICS"` // default: true
	Path    string `yaml:"path"`                            // default: "/metrics"
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"      env:"VAULTGATE_TRACING"`
	ServiceName string `yaml:"service_name" env:"VAULTGATE_SERVICE_NAME"` // default: "vaultgate"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"VAULTGATE_LOG_LEVEL"` // default: "INFO"
	Debug string `yaml:"debug" env:"VAULTGATE_DEBUG"`     // comma-separated categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Anonymous: AnonymousConfig{
			RateLimitRequests: 10,
			RateLimitWindowMS: 60000,
			SweepInterval:     time.Minute,
		},
		Backend: BackendConfig{
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName: "vaultgate",
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// LogValue masks secrets when the config is logged.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Server.Port),
		slog.Bool("anonymous", c.Anonymous.Enabled()),
		slog.String("anonymous_api_key", mask(c.Anonymous.APIKey)),
		slog.String("anonymous_vault_id", c.Anonymous.VaultID),
		slog.Int("rate_limit_requests", c.Anonymous.RateLimitRequests),
		slog.Duration("rate_limit_window", c.Anonymous.Window()),
		slog.String("default_vault_id", c.Vault.VaultID),
		slog.String("backend_url", c.Backend.URL),
		slog.Bool("metrics", c.Observability.Metrics.Enabled),
		slog.Bool("tracing", c.Observability.Tracing.Enabled),
		slog.String("log_level", c.Log.Level),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

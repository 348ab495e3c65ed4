package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be a valid TCP port.
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	// The limiter is built even when anonymous mode is off, so its
	// settings are always checked.
	if c.Anonymous.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("anonymous.rate_limit_requests must be > 0, got %d", c.Anonymous.RateLimitRequests))
	}
	if c.Anonymous.RateLimitWindowMS <= 0 {
		errs = append(errs, fmt.Errorf("anonymous.rate_limit_window_ms must be > 0, got %d", c.Anonymous.RateLimitWindowMS))
	}
	if c.Anonymous.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("anonymous.sweep_interval must be > 0, got %s", c.Anonymous.SweepInterval))
	}

	if c.Backend.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must be > 0, got %s", c.Backend.Timeout))
	}
	if u := c.Backend.URL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		errs = append(errs, fmt.Errorf("backend.url must be an http(s) URL, got %q", u))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}

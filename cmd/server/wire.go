package main

import (
	"fmt"
	"log/slog"

	"github.com/rhuss/vaultgate/pkg/auth"
	"github.com/rhuss/vaultgate/pkg/backend"
	"github.com/rhuss/vaultgate/pkg/config"
	"github.com/rhuss/vaultgate/pkg/vault"
)

// newLimiter builds the anonymous-mode limiter. It is built even when
// anonymous mode is off so that its sweeper has something to run.
func newLimiter(cfg *config.Config) (*auth.FixedWindowLimiter, error) {
	limiter, err := auth.NewFixedWindowLimiter(
		auth.LimitConfig{
			MaxRequests: cfg.Anonymous.RateLimitRequests,
			Window:      cfg.Anonymous.Window(),
		},
		auth.WithSweepInterval(cfg.Anonymous.SweepInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return limiter, nil
}

// newGateway wires the auth gateway to a backend factory that builds one
// detect API client per request.
func newGateway(cfg *config.Config, limiter *auth.FixedWindowLimiter, logger *slog.Logger) (*auth.Gateway, error) {
	var anon *auth.AnonymousConfig
	if cfg.Anonymous.Enabled() {
		anon = &auth.AnonymousConfig{
			APIKey: cfg.Anonymous.APIKey,
			Vault:  cfg.Anonymous.VaultParams(),
		}
	}

	gw, err := auth.NewGateway(auth.Gateway{
		Anonymous:     anon,
		Limiter:       limiter,
		VaultDefaults: cfg.Vault.Params(),
		NewBackend:    backendFactory(cfg.Backend),
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return gw, nil
}

func backendFactory(bc config.BackendConfig) auth.BackendFactory {
	return func(creds backend.Credentials, vc *vault.Config) (backend.Handle, error) {
		c, err := backend.New(backend.Config{
			Credentials: creds,
			Vault:       vc,
			BaseURL:     bc.URL,
			Timeout:     bc.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

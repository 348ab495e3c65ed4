// Command server runs the vaultgate MCP gateway.
//
// Subcommands:
//
//	serve         run the gateway (default)
//	check-config  load and validate configuration, then exit
//	version       print the build version
//
// Configuration comes from an optional YAML file, an optional .env file and
// the environment. See package config for the variable names.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rhuss/vaultgate/pkg/config"
	"github.com/rhuss/vaultgate/pkg/debug"
	"github.com/rhuss/vaultgate/pkg/observability"
	"github.com/rhuss/vaultgate/pkg/tools"
	transporthttp "github.com/rhuss/vaultgate/pkg/transport/http"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	root := &cobra.Command{
		Use:           "vaultgate",
		Short:         "Authenticating MCP gateway for vault detect APIs",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "check-config",
			Short: "Load and validate configuration, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				logger := slog.New(slog.NewTextHandler(cmd.OutOrStdout(), nil))
				logger.Info("configuration valid", "config", cfg)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := debug.Init(os.Stderr, cfg.Log.Debug, cfg.Log.Level)
	logger.Info("configuration loaded", "config", cfg, "debug", debug.Categories())

	if cfg.Observability.Tracing.Enabled {
		shutdownTracer, err := observability.InitTracer(cfg.Observability.Tracing.ServiceName, logger)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Warn("tracer shutdown", "error", err)
			}
		}()
	}

	limiter, err := newLimiter(cfg)
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg, limiter, logger)
	if err != nil {
		return err
	}
	if gw.Anonymous.Enabled() {
		logger.Info("anonymous mode enabled",
			"vault_id", cfg.Anonymous.VaultID,
			"rate_limit", cfg.Anonymous.RateLimitRequests,
			"window", cfg.Anonymous.Window(),
		)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(
		tools.Handler(version, logger),
		gw.Middleware,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithTracing(cfg.Observability.Tracing.Enabled),
		transporthttp.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Component: HTTP server. Returns after graceful shutdown once ctx ends.
	g.Go(func() error {
		return srv.Run(ctx)
	})

	// Component: evicts expired rate-limit windows.
	g.Go(func() error {
		return limiter.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

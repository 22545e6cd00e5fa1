package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/drago-vuckovic/sso/cmd/ssoapi/cmd/cmdutil"
	"github.com/drago-vuckovic/sso/internal/auth"
	"github.com/drago-vuckovic/sso/internal/server"
	"github.com/drago-vuckovic/sso/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	Long:  `Starts the HTTP server exposing user and realm role administration under /api/admin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := cmdutil.NewLogger(os.Stdout, cfg.Debug)

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := telemetry.NewCollector(registry)

		bundle, err := cmdutil.NewDirectoryBundle(cmd.Context(), cfg, logger, metrics)
		if err != nil {
			return err
		}

		if err := bundle.Warm(cmd.Context()); err != nil {
			logger.Warn("admin credential warm-up failed", "error", err)
		}

		verifier, err := auth.NewVerifier(cfg.Auth, auth.WithVerifierLogger(logger))
		if err != nil {
			return fmt.Errorf("configure token verifier: %w", err)
		}
		enforcer, err := auth.NewEnforcer(cfg.Auth.Policy)
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		handler, err := server.NewH2CHandler(server.RouterOptions{
			Users:         bundle.Directory,
			Enforcer:      enforcer,
			Authenticator: verifier,
			Gatherer:      registry,
			CORSOrigins:   cfg.CORSOrigins,
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("build router: %w", err)
		}

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.Provider.RequestTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server",
				"addr", cfg.ServerAddr,
				"realm", cfg.Provider.Realm,
				"auth_enabled", cfg.Auth.Enabled(),
			)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			logger.Info("server stopped")
			return nil
		}
	},
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/api"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/auth"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/config"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/health"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, WebSocket and SSE server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load())
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting analyst",
		slog.String("port", cfg.Port),
		slog.String("role", cfg.Role),
		slog.Bool("mock_mode", cfg.MockMode),
		slog.String("pipeline", cfg.Pipeline),
		slog.String("log_level", cfg.LogLevel),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	opts := api.ServerOptions{Tracing: cfg.OTelEnabled}

	limiter := auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	defer limiter.Close()
	opts.RateLimiter = limiter

	if cfg.OIDCEnabled {
		provider, err := auth.NewProvider(ctx, &auth.Config{
			Issuer:   cfg.OIDCIssuer,
			ClientID: cfg.OIDCClientID,
			Audience: cfg.OIDCAudience,
		})
		if err != nil {
			a.close(context.Background())
			return fmt.Errorf("init oidc: %w", err)
		}
		opts.Auth = auth.NewMiddleware(provider, &auth.MiddlewareConfig{
			Enabled:         true,
			ProtectedPrefix: "/api/crew/",
			MutationsOnly:   true,
			RequiredRoles:   cfg.OIDCRequiredRoles,
		})
		logger.Info("oidc auth enabled", slog.String("issuer", cfg.OIDCIssuer))
	}

	handlers := api.NewHandlers(api.Deps{
		Store:    a.store,
		Launcher: a.launcher,
		Registry: a.registry,
		Health: health.NewChecker(health.Config{
			MockMode:          cfg.MockMode,
			ManagerModel:      cfg.ManagerModel,
			ManagerBaseURL:    cfg.ManagerBaseURL,
			SpecialistModel:   cfg.SpecialistModel,
			SpecialistBaseURL: cfg.SpecialistBaseURL,
			Logger:            logger,
		}),
		Artifacts: a.mirror,
		Config:    cfg,
		Logger:    logger,
	})
	server := api.NewServer(handlers, opts)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-errCh:
		a.close(context.Background())
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/shardguard/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the planning HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(parent context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, closeAudit, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	if cfg.Sanitize.RulesFile != "" {
		if err := cfg.WatchRules(ctx, svc.SetSanitizer); err != nil {
			slog.Warn("rules hot reload disabled", "err", err)
		}
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		Handler: api.Server(api.New(svc), api.Options{
			RateLimit: cfg.Server.RateLimit,
			RateBurst: cfg.Server.RateBurst,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.PlanTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()

		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("starting shardguard server",
		"addr", cfg.ListenAddr(),
		"backend", cfg.Backend,
		"detectors", len(svc.Sanitizer().Detectors()),
		"rate_limit", cfg.Server.RateLimit,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

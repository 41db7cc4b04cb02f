package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"audiocaption/internal/config"
	"audiocaption/internal/mockserver"
	"audiocaption/internal/observability"
)

func newServeMockCommand(cfg config.Config) *cobra.Command {
	var (
		addr     string
		logLevel string
		behavior mockserver.Behavior
	)

	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run a local stand-in for the captioning service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel, cmd.ErrOrStderr())
			metrics := observability.NewMetrics()

			srv := &http.Server{
				Addr: addr,
				Handler: mockserver.NewServer(behavior, logger, mockserver.Dependencies{
					Metrics:        metrics,
					MetricsHandler: metrics.Handler(),
				}),
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("mock captioner starting", "addr", addr, "status", behavior.Status, "delay", behavior.Delay)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					logger.Error("mock captioner exited", "error", err)
				}
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", "error", err)
				return err
			}
			logger.Info("mock captioner stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", cfg.MockListenAddr, "Listen address")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&behavior.Caption, "caption", "", "Caption to return (defaults to one naming the audio URL)")
	f.IntVar(&behavior.Status, "status", http.StatusOK, "HTTP status to answer with")
	f.DurationVar(&behavior.Delay, "delay", 0, "Delay before answering")
	f.BoolVar(&behavior.OmitUsage, "omit-usage", false, "Leave the usage block out of responses")
	f.StringVar(&behavior.Body, "body", "", "Raw response body to send instead of a generated one")

	return cmd
}

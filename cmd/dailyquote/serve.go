package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/dailyquote/internal/app"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (triggers, read API, media, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	built, err := app.Build(ctx, c.cfg, c.logger, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			c.logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()

	c.logger.Info().
		Str("env", c.cfg.Env).
		Str("text_provider", built.Providers.Text).
		Str("voice_provider", built.Providers.Voice).
		Str("store_mode", built.Providers.Store).
		Str("object_store", built.Providers.ObjectStore).
		Str("rate_limit", built.Providers.RateLimit).
		Msg("providers resolved")

	httpServer := &http.Server{
		Addr:              c.cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info().Str("addr", c.cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if built.Janitor != nil {
		g.Go(func() error { return built.Janitor(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn().Err(err).Msg("graceful shutdown failed")
			_ = httpServer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info().Msg("shutdown complete")
	return nil
}

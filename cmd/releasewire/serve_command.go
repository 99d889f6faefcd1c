package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/releasewire/internal/api"
	"github.com/sydlexius/releasewire/internal/api/middleware"
	"github.com/sydlexius/releasewire/internal/config"
	"github.com/sydlexius/releasewire/internal/importer"
	"github.com/sydlexius/releasewire/internal/watcher"
)

func newServeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled imports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	router := api.NewRouter(api.RouterDeps{
		Runner:     a.runner,
		Releases:   a.store,
		Logger:     logger,
		BasePath:   cfg.Server.BasePath,
		APIToken:   cfg.Server.APIToken,
		Trigger:    middleware.NewTriggerRateLimiter(ctx, cfg.Server.TriggerEvery, cfg.Server.TriggerBurst),
		RunContext: ctx,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.Import.Interval > 0 {
		scheduler := importer.NewScheduler(a.runner, cfg.Import.PrincipalID, logger)
		go scheduler.Start(ctx, cfg.Import.Interval)
	}

	if a.sqlDB != nil {
		go a.maintenance().StartScheduler(ctx, cfg.Database.OptimizeInterval)
		go a.backups().StartScheduler(ctx, cfg.Database.BackupInterval)
	}

	cfgWatcher := watcher.NewService(a.configPath, a.reloadLogging, logger)
	go func() {
		if err := cfgWatcher.Start(ctx); err != nil {
			logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// reloadLogging applies logging changes from the config file. Other
// sections take effect on restart.
func (a *app) reloadLogging(context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.logManager.Reconfigure(cfg.Logging)
	return nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sydlexius/releasewire/internal/config"
	"github.com/sydlexius/releasewire/internal/credential"
	"github.com/sydlexius/releasewire/internal/database"
	"github.com/sydlexius/releasewire/internal/dedup"
	"github.com/sydlexius/releasewire/internal/event"
	"github.com/sydlexius/releasewire/internal/importer"
	"github.com/sydlexius/releasewire/internal/logging"
	"github.com/sydlexius/releasewire/internal/provider"
	"github.com/sydlexius/releasewire/internal/provider/spotify"
	"github.com/sydlexius/releasewire/internal/release"
	"github.com/sydlexius/releasewire/internal/release/pgstore"
	"github.com/sydlexius/releasewire/internal/resolver"
	"github.com/sydlexius/releasewire/internal/source"
	"github.com/sydlexius/releasewire/internal/source/chart"
	"github.com/sydlexius/releasewire/internal/source/forum"
	"github.com/sydlexius/releasewire/internal/source/playlist"
	"github.com/sydlexius/releasewire/internal/webhook"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	configPath string
	logManager *logging.Manager
	logger     *slog.Logger
	store      release.Store
	closeStore func()
	// sqlDB is the sqlite handle, nil when the catalog is on postgres.
	sqlDB    *sql.DB
	bus      *event.Bus
	webhooks *webhook.Dispatcher
	runner   *importer.Runner
}

// newBaseApp loads config, sets up logging and opens the migrated catalog.
func newBaseApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logManager, logger := logging.NewManager(cfg.Logging)
	slog.SetDefault(logger)

	store, sqlDB, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = logManager.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		configPath: configPath,
		logManager: logManager,
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		sqlDB:      sqlDB,
	}, nil
}

// newApp is newBaseApp plus the import pipeline.
func newApp(ctx context.Context, configPath string) (*app, error) {
	a, err := newBaseApp(ctx, configPath)
	if err != nil {
		return nil, err
	}
	a.bus = event.NewBus(a.logger, 64)
	a.bus.Subscribe(a.logEvent, event.ImportStarted, event.ImportCompleted, event.ImportFailed)
	if len(a.cfg.Webhooks) > 0 {
		a.webhooks = webhook.NewDispatcher(webhooksFromConfig(a.cfg.Webhooks), a.logger)
		a.webhooks.Subscribe(a.bus)
	}
	go a.bus.Start()
	a.runner = a.buildRunner()
	return a, nil
}

func (a *app) Close() {
	if a.bus != nil {
		a.bus.Stop()
		a.bus.Wait()
	}
	if a.webhooks != nil {
		a.webhooks.Wait()
	}
	a.closeStore()
	_ = a.logManager.Close()
}

func (a *app) logEvent(e event.Event) {
	a.logger.Debug("import event",
		slog.String("type", string(e.Type)),
		slog.String("run_id", e.RunID),
		slog.String("principal", e.PrincipalID),
		slog.Any("data", e.Data))
}

func webhooksFromConfig(cfgs []config.WebhookConfig) []webhook.Webhook {
	hooks := make([]webhook.Webhook, 0, len(cfgs))
	for _, c := range cfgs {
		hooks = append(hooks, webhook.Webhook{Name: c.Name, URL: c.URL, Type: c.Type, Events: c.Events})
	}
	return hooks
}

// openStore opens and migrates the configured catalog. The *sql.DB is
// returned only for sqlite so maintenance and backups can use it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (release.Store, *sql.DB, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		s, err := pgstore.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening postgres catalog: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("catalog ready", slog.String("driver", config.DriverPostgres))
		return s, nil, s.Close, nil
	default:
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := database.Migrate(db, database.DialectSQLite); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("catalog ready", slog.String("driver", config.DriverSQLite), slog.String("path", cfg.Database.Path))
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Error("closing database", slog.String("error", err.Error()))
			}
		}
		return release.NewService(db, logger), db, closeFn, nil
	}
}

func (a *app) buildRunner() *importer.Runner {
	cfg := a.cfg

	tokens := credential.New(credential.Config{
		ClientID:     cfg.Metadata.ClientID,
		ClientSecret: cfg.Metadata.ClientSecret,
		TokenURL:     cfg.Metadata.TokenURL,
		Skew:         cfg.Metadata.TokenSkew,
	}, a.logger)

	limits := make(map[string]provider.WindowLimit, len(cfg.Metadata.RateLimits))
	for key, rl := range cfg.Metadata.RateLimits {
		limits[key] = provider.WindowLimit{MaxRequests: rl.MaxRequests, Window: rl.Window}
	}
	limiter := provider.NewRateLimiter(limits, provider.WindowLimit{})

	svc := spotify.NewWithBaseURL(tokens, limiter, a.logger, cfg.Metadata.BaseURL).
		WithTimeout(cfg.Metadata.Timeout)

	res := resolver.New(svc, resolver.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  cfg.Retry.InitialDelay,
		Factor:        cfg.Retry.Factor,
		MaxRetryAfter: cfg.Retry.MaxRetryAfter,
	}, a.logger)

	engine := dedup.NewEngine(a.store, dedup.Thresholds{
		MaxDistance: cfg.Dedup.MaxDistance,
		Ratio:       cfg.Dedup.DistanceRatio,
	})

	orch := importer.New(importer.Deps{
		Sources:  buildSources(cfg.Sources, svc, a.logger),
		Resolver: res,
		Dedup:    engine,
		Writer:   a.store,
		Tokens:   tokens,
		Bus:      a.bus,
	}, importer.Options{
		BatchSize:  cfg.Import.BatchSize,
		Stagger:    cfg.Import.Stagger,
		BatchDelay: cfg.Import.BatchDelay,
	}, a.logger)

	return importer.NewRunner(orch, spotify.CanonicalAlbumURL, a.logger)
}

func buildSources(cfg config.SourcesConfig, svc *spotify.Adapter, logger *slog.Logger) []source.Source {
	var sources []source.Source
	if cfg.Forum.Enabled {
		sources = append(sources, forum.New(forum.Config{
			BaseURL:   cfg.Forum.BaseURL,
			Community: cfg.Forum.Community,
			Query:     cfg.Forum.Query,
			MaxPages:  cfg.Forum.MaxPages,
			PageDelay: cfg.Forum.PageDelay,
		}, spotify.CanonicalAlbumURL, logger))
	}
	if cfg.Chart.Enabled && cfg.Chart.URL != "" {
		sources = append(sources, chart.New(chart.Config{
			URL:       cfg.Chart.URL,
			MaxPages:  cfg.Chart.MaxPages,
			PageDelay: cfg.Chart.PageDelay,
		}, spotify.CanonicalAlbumURL, logger))
	}
	if cfg.Playlists.Enabled && len(cfg.Playlists.IDs) > 0 {
		sources = append(sources, playlist.New(svc, cfg.Playlists.IDs, cfg.Playlists.MaxPages, spotify.CanonicalAlbumURL, logger))
	}
	if len(sources) == 0 {
		logger.Warn("no discovery sources enabled; only link imports will find candidates")
	}
	return sources
}

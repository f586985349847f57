package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/data/db"
	"github.com/yungbote/fastingles-audio/internal/observability"
	"github.com/yungbote/fastingles-audio/internal/platform/envutil"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func newLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// New builds the full audio cache stack. The schema is migrated unless
// DB_AUTO_MIGRATE=false.
func New(ctx context.Context) (*App, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "fastingles-audio",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	dbService, err := db.Open(cfg.DB, log)
	if err != nil {
		_ = shutdown(ctx)
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if envutil.Bool("DB_AUTO_MIGRATE", true) {
		if err := dbService.AutoMigrateAll(); err != nil {
			_ = dbService.Close()
			_ = shutdown(ctx)
			log.Sync()
			return nil, fmt.Errorf("database automigrate: %w", err)
		}
	}
	theDB := dbService.DB()

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		_ = shutdown(ctx)
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, reposet, clientset, metrics)
	if err != nil {
		clientset.Close()
		_ = dbService.Close()
		_ = shutdown(ctx)
		log.Sync()
		return nil, err
	}

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Metrics:      metrics,
		dbService:    dbService,
		otelShutdown: shutdown,
	}, nil
}

// Migrate opens the database and applies the schema without touching storage
// or synthesis providers.
func Migrate(ctx context.Context) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := LoadConfig(log)
	dbService, err := db.Open(cfg.DB, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer dbService.Close()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		return fmt.Errorf("database automigrate: %w", err)
	}
	log.Info("Schema migrated", "driver", cfg.DB.Driver)
	return nil
}

// Start launches the metrics endpoint and background collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
}

// Close waits for queued lesson batches and access bumps, then releases
// clients. Work still running after DrainTimeout is cancelled.
func (a *App) Close() {
	if a == nil {
		return
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.DrainTimeout)
	defer cancel()

	if a.Services.Runner != nil {
		if err := a.Services.Runner.Close(drainCtx); err != nil {
			a.Log.Warn("Batch runner did not drain", "error", err)
		}
	}
	if a.Services.AudioCache != nil {
		if err := a.Services.AudioCache.Drain(drainCtx); err != nil {
			a.Log.Warn("Access updates did not drain", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(drainCtx)
	}
	a.Log.Sync()
}

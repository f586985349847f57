package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/fastingles-audio/internal/jobs"
	"github.com/yungbote/fastingles-audio/internal/observability"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
	"github.com/yungbote/fastingles-audio/internal/services"
)

type Services struct {
	Synthesizers *services.SynthesizerRegistry
	// Runner executes lesson batches detached from the submitting caller.
	Runner     *jobs.Runner
	AudioCache services.AudioCacheService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	registry, err := services.NewSynthesizerRegistry(cfg.DefaultProvider, clients.Synthesizers...)
	if err != nil {
		return Services{}, fmt.Errorf("init synthesizer registry: %w", err)
	}
	log.Info("Synthesizers registered", "providers", registry.Names(), "default", registry.Default().Name())

	runner := jobs.NewRunner(log, jobs.RunnerConfig{
		Workers:   cfg.BatchWorkers,
		QueueSize: cfg.BatchQueue,
		Timeout:   cfg.BatchTimeout,
	})

	// A nil *GenerationLease must not become a non-nil interface.
	var lease services.GenerationLease
	if clients.Lease != nil {
		lease = clients.Lease
	}

	audioCache, err := services.NewAudioCacheService(
		db,
		log,
		repos.AudioCache,
		clients.ObjectStore,
		registry,
		runner,
		lease,
		metrics,
		cfg.Cache,
	)
	if err != nil {
		_ = runner.Close(context.Background())
		return Services{}, fmt.Errorf("init audio cache service: %w", err)
	}

	return Services{
		Synthesizers: registry,
		Runner:       runner,
		AudioCache:   audioCache,
	}, nil
}

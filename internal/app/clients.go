package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/fastingles-audio/internal/clients/redis"
	"github.com/yungbote/fastingles-audio/internal/platform/gcp"
	"github.com/yungbote/fastingles-audio/internal/platform/gtts"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
	"github.com/yungbote/fastingles-audio/internal/platform/openai"
	"github.com/yungbote/fastingles-audio/internal/services"
)

type Clients struct {
	ObjectStore *gcp.ObjectStore
	Redis       *goredis.Client
	// Lease is nil when REDIS_ADDR is unset.
	Lease        *redis.GenerationLease
	Synthesizers []services.Synthesizer
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var out Clients

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
		out.Lease = redis.NewGenerationLease(log, rdb, cfg.LeasePrefix, cfg.LeaseTTL)
	} else {
		log.Info("REDIS_ADDR not set; generation coordination is process-local")
	}

	// Gcs
	store, err := openObjectStore(ctx, log)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init object store: %w", err)
	}
	out.ObjectStore = store

	// Tts
	gttsClient, err := gtts.NewClient(log, cfg.GTTS)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init gtts client: %w", err)
	}
	out.Synthesizers = append(out.Synthesizers, gttsClient)

	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		speech, err := openai.NewSpeechClient(log, cfg.OpenAI)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init openai speech client: %w", err)
		}
		out.Synthesizers = append(out.Synthesizers, speech)
	} else {
		log.Info("OPENAI_API_KEY not set; openai synthesis disabled")
	}

	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.ObjectStore != nil {
		_ = c.ObjectStore.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

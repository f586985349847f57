package app

import (
	"strings"
	"time"

	"github.com/yungbote/fastingles-audio/internal/data/db"
	"github.com/yungbote/fastingles-audio/internal/platform/envutil"
	"github.com/yungbote/fastingles-audio/internal/platform/gtts"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
	"github.com/yungbote/fastingles-audio/internal/platform/openai"
	"github.com/yungbote/fastingles-audio/internal/services"
)

type Config struct {
	LogMode     string
	Environment string
	Version     string

	DB db.Config

	DefaultProvider string
	GTTS            gtts.Config
	OpenAI          openai.SpeechConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LeasePrefix   string
	LeaseTTL      time.Duration

	Cache services.AudioCacheConfig

	BatchWorkers int
	BatchQueue   int
	BatchTimeout time.Duration
	DrainTimeout time.Duration

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),
		DB: db.Config{
			Driver:           strings.ToLower(envutil.String("DB_DRIVER", db.DriverPostgres)),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "fastingles"),
			PostgresSSLMode:  envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath:       envutil.String("SQLITE_PATH", "audiocache.db"),
			MaxOpenConns:     envutil.Int("DB_MAX_OPEN_CONNS", 20),
		},
		DefaultProvider: strings.ToLower(envutil.String("TTS_PROVIDER", gtts.ProviderName)),
		GTTS:            gtts.ConfigFromEnv(),
		OpenAI:          openai.SpeechConfigFromEnv(),
		RedisAddr:       envutil.String("REDIS_ADDR", ""),
		RedisPassword:   envutil.String("REDIS_PASSWORD", ""),
		RedisDB:         envutil.Int("REDIS_DB", 0),
		LeasePrefix:     envutil.String("AUDIO_LEASE_PREFIX", "audio:gen:"),
		LeaseTTL:        envutil.Duration("AUDIO_LEASE_TTL", 60*time.Second),
		Cache: services.AudioCacheConfig{
			URLTTL:            envutil.Duration("AUDIO_URL_TTL", time.Hour),
			GenerationTimeout: envutil.Duration("AUDIO_GENERATION_TIMEOUT", 2*time.Minute),
			LeaseWait:         envutil.Duration("AUDIO_LEASE_WAIT", 30*time.Second),
			LeasePoll:         envutil.Duration("AUDIO_LEASE_POLL", 500*time.Millisecond),
			AccessBumpTimeout: envutil.Duration("AUDIO_ACCESS_BUMP_TIMEOUT", 5*time.Second),
		},
		BatchWorkers: envutil.Int("AUDIO_BATCH_WORKERS", 2),
		BatchQueue:   envutil.Int("AUDIO_BATCH_QUEUE", 64),
		BatchTimeout: envutil.Duration("AUDIO_BATCH_TIMEOUT", 30*time.Minute),
		DrainTimeout: envutil.Duration("AUDIO_DRAIN_TIMEOUT", 30*time.Second),
		MetricsAddr:  envutil.String("METRICS_ADDR", ""),
	}

	if log != nil {
		log.Info(
			"Loaded config",
			"db_driver", cfg.DB.Driver,
			"tts_provider", cfg.DefaultProvider,
			"openai_configured", cfg.OpenAI.APIKey != "",
			"redis_configured", cfg.RedisAddr != "",
			"batch_workers", cfg.BatchWorkers,
			"url_ttl", cfg.Cache.URLTTL,
		)
	}
	return cfg
}

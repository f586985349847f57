package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

const defaultLeasePrefix = "audio:gen:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// GenerationLease is a short-lived cross-process claim on generating audio for
// one content identity.
type GenerationLease struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewGenerationLease(log *logger.Logger, rdb goredis.UniversalClient, prefix string, ttl time.Duration) *GenerationLease {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultLeasePrefix
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &GenerationLease{
		log:    log.With("service", "GenerationLease"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// TryAcquire claims identity. When acquired is false another process holds
// the claim and release is nil.
func (l *GenerationLease) TryAcquire(ctx context.Context, identity string) (release func(context.Context) error, acquired bool, err error) {
	key := l.prefix + identity
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release lease %q: %w", key, err)
		}
		if n == 0 {
			l.log.Warn("Lease expired before release", "key", key)
		}
		return nil
	}
	return release, true, nil
}

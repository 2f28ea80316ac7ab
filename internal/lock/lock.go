// Package lock serializes work on a key across goroutines, and across
// processes when Redis is configured.
package lock

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/retailsales/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTTL        = 30 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
)

// Locker grants exclusive access to a key until the returned release
// function is called.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

var Module = fx.Module("lock",
	fx.Provide(New),
)

// New returns a Redis backed locker when REDIS_ADDR is set and an
// in-process keyed mutex otherwise.
func New(cfg config.Config, log *zap.Logger) Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return NewLocal()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	log.Named("lock").Info("using redis locks", zap.String("addr", addr))
	return NewRedis(client, defaultTTL)
}

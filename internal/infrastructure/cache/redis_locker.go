package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL       = 30 * time.Second
	defaultRetryInterval = 25 * time.Millisecond
	defaultLockPrefix    = "stockledger:lock:"
	releaseTimeout       = 2 * time.Second
)

// releaseScript deletes the lock only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a KeyedLocker shared by every process using the same Redis.
// A lock is a key set with SET NX PX holding a random token; it expires after
// TTL if its holder dies, so TTL must exceed the longest write transaction.
type RedisLocker struct {
	client        *redis.Client
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// RedisLockerOption configures a RedisLocker
type RedisLockerOption func(*RedisLocker)

// WithLockTTL sets the lease duration
func WithLockTTL(ttl time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets how often a waiting caller retries
func WithRetryInterval(d time.Duration) RedisLockerOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithKeyPrefix namespaces the Redis keys
func WithKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.keyPrefix = prefix
		}
	}
}

// WithLockLogger sets the logger
func WithLockLogger(logger *zap.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a locker on an existing client
func NewRedisLocker(client *redis.Client, opts ...RedisLockerOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		keyPrefix:     defaultLockPrefix,
		ttl:           defaultLockTTL,
		retryInterval: defaultRetryInterval,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock polls SET NX until it wins or ctx is done. The lease is independent of
// ctx: it lasts until the returned UnlockFunc runs or TTL elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (shared.UnlockFunc, error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(redisKey, token string) shared.UnlockFunc {
	acquired := time.Now()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			l.logger.Error("failed to release lock", zap.String("key", redisKey), zap.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("lock lease expired before release",
				zap.String("key", redisKey),
				zap.Duration("held", time.Since(acquired)),
				zap.Duration("ttl", l.ttl))
		}
	}
}

var _ shared.KeyedLocker = (*RedisLocker)(nil)

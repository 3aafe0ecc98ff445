package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds lockers and event-mark stores from configuration.
// Redis-backed components share one client, opened on first use.
type Factory struct {
	redisConfig           config.RedisConfig
	lockConfig            config.LockConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the components it builds
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether event marks fall back to memory when
// Redis is unavailable. Lockers never fall back: a redis lock backend that
// cannot reach Redis is an error, because a process-local lock would not
// exclude other instances.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(redisCfg config.RedisConfig, lockCfg config.LockConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           redisCfg,
		lockConfig:            lockCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLocker returns the KeyedLocker selected by lock.backend
func (f *Factory) CreateLocker(ctx context.Context) (shared.KeyedLocker, error) {
	switch f.lockConfig.Backend {
	case "", "memory":
		f.logger.Info("using in-process keyed locker")
		return NewKeyedMutex(), nil
	case "redis":
		client, err := f.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("redis lock backend unavailable: %w", err)
		}
		f.logger.Info("using Redis keyed locker",
			zap.Duration("ttl", f.lockConfig.TTL),
			zap.Duration("retry_interval", f.lockConfig.RetryInterval))
		return NewRedisLocker(client,
			WithLockTTL(f.lockConfig.TTL),
			WithRetryInterval(f.lockConfig.RetryInterval),
			WithKeyPrefix(f.lockConfig.KeyPrefix),
			WithLockLogger(f.logger.Named("redis_locker")),
		), nil
	default:
		return nil, fmt.Errorf("%w: unknown lock backend %q", shared.ErrInvalidInput, f.lockConfig.Backend)
	}
}

// CreateIdempotencyStore returns a Redis event-mark store, or an in-memory
// one when Redis is unreachable and fallback is allowed
func (f *Factory) CreateIdempotencyStore(ctx context.Context) (shared.IdempotencyStore, error) {
	client, err := f.redisClient(ctx)
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return NewRedisEventMarks(client, ""), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"This may cause duplicate event processing in distributed deployments.",
		zap.Error(err),
	)
	return NewMemoryEventMarks(), nil
}

// Close closes the shared Redis client if one was opened
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}

func (f *Factory) redisClient(ctx context.Context) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	client, err := NewRedisClient(ctx, f.redisConfig)
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

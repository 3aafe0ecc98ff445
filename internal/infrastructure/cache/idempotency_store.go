package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultEventPrefix = "stockledger:event:"

// sweepEvery is how many marks pass between purges of expired entries
const sweepEvery = 256

// MemoryEventMarks remembers processed event IDs in process memory.
// Expired marks are purged lazily while new ones are written.
type MemoryEventMarks struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	writes int
	now    func() time.Time
}

// NewMemoryEventMarks creates an empty in-memory store
func NewMemoryEventMarks() *MemoryEventMarks {
	return &MemoryEventMarks{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// MarkProcessed records eventID for ttl; false means it was already recorded
func (s *MemoryEventMarks) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expiry[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiry[eventID] = now.Add(ttl)

	s.writes++
	if s.writes%sweepEvery == 0 {
		s.sweep(now)
	}
	return true, nil
}

// IsProcessed reports whether eventID holds an unexpired mark
func (s *MemoryEventMarks) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expiry[eventID]
	return ok && s.now().Before(exp), nil
}

// Close is a no-op
func (s *MemoryEventMarks) Close() error { return nil }

// Len returns the number of stored marks, expired ones included until swept
func (s *MemoryEventMarks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryEventMarks) sweep(now time.Time) {
	for id, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.expiry, id)
		}
	}
}

// RedisEventMarks stores processed event IDs in Redis so every instance
// sees the same marks
type RedisEventMarks struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisEventMarks creates a store on an existing client. Close leaves the client open.
func NewRedisEventMarks(client *redis.Client, keyPrefix string) *RedisEventMarks {
	if keyPrefix == "" {
		keyPrefix = defaultEventPrefix
	}
	return &RedisEventMarks{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed uses SET NX with expiry, so exactly one caller wins per eventID
func (s *RedisEventMarks) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks whether the mark exists
func (s *RedisEventMarks) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event status: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the client belongs to whoever created it
func (s *RedisEventMarks) Close() error { return nil }

var (
	_ shared.IdempotencyStore = (*MemoryEventMarks)(nil)
	_ shared.IdempotencyStore = (*RedisEventMarks)(nil)
)

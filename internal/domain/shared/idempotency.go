package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which event IDs a handler has already seen.
// It dedups event delivery only; document exactly-once is enforced by the
// unique keys of the ledger tables.
type IdempotencyStore interface {
	// MarkProcessed reports true when eventID was not marked before
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Close() error
}

// IdempotencyConfig controls event dedup
type IdempotencyConfig struct {
	// TTL bounds how long a mark is kept
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig keeps marks for a day
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

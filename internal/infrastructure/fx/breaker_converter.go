package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around a rate source
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerConverter guards a remote CurrencyConverter with a circuit breaker.
// While open, lookups fail fast with shared.ErrRateUnavailable.
type BreakerConverter struct {
	next    shared.CurrencyConverter
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
}

// NewBreakerConverter wraps next
func NewBreakerConverter(next shared.CurrencyConverter, cfg BreakerConfig, logger *zap.Logger) *BreakerConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "fx"
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("fx circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// unknown currencies are caller errors, not collaborator failures
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, shared.ErrRateUnavailable) || errors.Is(err, shared.ErrInvalidInput)
		},
	}

	return &BreakerConverter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[decimal.Decimal](settings),
	}
}

// BaseCurrency delegates to the wrapped converter
func (c *BreakerConverter) BaseCurrency() string {
	return c.next.BaseCurrency()
}

// RateToBase looks up the rate through the breaker. The base currency never
// touches the collaborator.
func (c *BreakerConverter) RateToBase(ctx context.Context, currency string, on time.Time) (decimal.Decimal, error) {
	if currency == c.next.BaseCurrency() {
		return decimal.NewFromInt(1), nil
	}
	rate, err := c.breaker.Execute(func() (decimal.Decimal, error) {
		return c.next.RateToBase(ctx, currency, on)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return decimal.Zero, fmt.Errorf("%w: %s rate source unavailable: %v", shared.ErrRateUnavailable, currency, err)
	}
	return rate, err
}

// State returns the breaker state for monitoring
func (c *BreakerConverter) State() string {
	return c.breaker.State().String()
}

var _ shared.CurrencyConverter = (*BreakerConverter)(nil)

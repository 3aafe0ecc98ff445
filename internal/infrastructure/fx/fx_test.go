package fx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStaticConverter(t *testing.T) {
	ctx := context.Background()
	c, err := NewStaticConverterFromStrings("usd", map[string]string{"eur": "1.10", "JPY": "0.0067"})
	require.NoError(t, err)

	assert.Equal(t, "USD", c.BaseCurrency())

	tests := []struct {
		currency string
		want     string
		wantErr  error
	}{
		{"USD", "1", nil},
		{"usd", "1", nil},
		{"EUR", "1.10", nil},
		{"jpy", "0.0067", nil},
		{"GBP", "", shared.ErrRateUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			rate, err := c.RateToBase(ctx, tt.currency, time.Now())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(rate), "got %s", rate)
		})
	}

	t.Run("rejects bad rates", func(t *testing.T) {
		_, err := NewStaticConverterFromStrings("USD", map[string]string{"EUR": "abc"})
		require.ErrorIs(t, err, shared.ErrInvalidInput)
		_, err = NewStaticConverterFromStrings("USD", map[string]string{"EUR": "0"})
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

type flakyConverter struct {
	calls int32
	err   error
}

func (f *flakyConverter) BaseCurrency() string { return "USD" }

func (f *flakyConverter) RateToBase(context.Context, string, time.Time) (decimal.Decimal, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return decimal.RequireFromString("1.25"), nil
}

func TestBreakerConverter(t *testing.T) {
	ctx := context.Background()

	t.Run("passes rates through", func(t *testing.T) {
		next := &flakyConverter{}
		c := NewBreakerConverter(next, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, zaptest.NewLogger(t))

		rate, err := c.RateToBase(ctx, "GBP", time.Now())
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1.25").Equal(rate))

		rate, err = c.RateToBase(ctx, "USD", time.Now())
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1).Equal(rate))
		assert.Equal(t, int32(1), next.calls, "base currency never reaches the source")
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		next := &flakyConverter{err: errors.New("connection refused")}
		c := NewBreakerConverter(next, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, zaptest.NewLogger(t))

		for i := 0; i < 2; i++ {
			_, err := c.RateToBase(ctx, "GBP", time.Now())
			require.Error(t, err)
			assert.NotErrorIs(t, err, shared.ErrRateUnavailable)
		}
		assert.Equal(t, "open", c.State())

		_, err := c.RateToBase(ctx, "GBP", time.Now())
		require.ErrorIs(t, err, shared.ErrRateUnavailable)
		assert.Equal(t, int32(2), next.calls, "open breaker fails fast")
	})

	t.Run("unknown currency does not trip", func(t *testing.T) {
		next := &flakyConverter{err: shared.ErrRateUnavailable}
		c := NewBreakerConverter(next, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute}, nil)

		for i := 0; i < 3; i++ {
			_, err := c.RateToBase(ctx, "XYZ", time.Now())
			require.ErrorIs(t, err, shared.ErrRateUnavailable)
		}
		assert.Equal(t, "closed", c.State())
		assert.Equal(t, int32(3), next.calls)
	})
}

func TestStaticChart(t *testing.T) {
	c := NewStaticChart([]string{"1300", "5000"}, []string{"LE1"})
	assert.True(t, c.HasAccount("1300"))
	assert.False(t, c.HasAccount("9999"))
	assert.True(t, c.HasLegalEntity("LE1"))
	assert.False(t, c.HasLegalEntity("LE2"))
	assert.False(t, c.HasLegalEntity(""))
}

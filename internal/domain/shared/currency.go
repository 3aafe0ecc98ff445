package shared

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyConverter returns the rate that converts one unit of currency into the
// base (reporting) currency on the given date. The base currency itself converts at 1.
//
// Implementations may perform network calls, so callers resolve rates before
// entering any critical section.
type CurrencyConverter interface {
	RateToBase(ctx context.Context, currency string, on time.Time) (decimal.Decimal, error)
	BaseCurrency() string
}

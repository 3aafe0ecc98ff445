package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// StaticConverter serves rates from a fixed table, independent of date.
// Suitable for tests, single-currency deployments and the CLI.
type StaticConverter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticConverter creates a converter for base with rates[currency] = units of base per unit of currency
func NewStaticConverter(base string, rates map[string]decimal.Decimal) *StaticConverter {
	c := &StaticConverter{
		base:  strings.ToUpper(base),
		rates: make(map[string]decimal.Decimal, len(rates)),
	}
	for cur, r := range rates {
		c.rates[strings.ToUpper(cur)] = r
	}
	return c
}

// NewStaticConverterFromStrings parses a config rate table
func NewStaticConverterFromStrings(base string, rates map[string]string) (*StaticConverter, error) {
	parsed := make(map[string]decimal.Decimal, len(rates))
	for cur, s := range rates {
		r, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s: %v", shared.ErrInvalidInput, cur, err)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be positive", shared.ErrInvalidInput, cur)
		}
		parsed[cur] = r
	}
	return NewStaticConverter(base, parsed), nil
}

// BaseCurrency returns the reporting currency
func (c *StaticConverter) BaseCurrency() string {
	return c.base
}

// RateToBase returns 1 for the base currency and the table rate otherwise
func (c *StaticConverter) RateToBase(ctx context.Context, currency string, _ time.Time) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	cur := strings.ToUpper(currency)
	if cur == c.base {
		return decimal.NewFromInt(1), nil
	}
	r, ok := c.rates[cur]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", shared.ErrRateUnavailable, cur, c.base)
	}
	return r, nil
}

var _ shared.CurrencyConverter = (*StaticConverter)(nil)

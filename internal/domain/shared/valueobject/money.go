package valueobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	CNY Currency = "CNY"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

// ParseCurrency normalizes and validates a three-letter currency code
func ParseCurrency(code string) (Currency, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency code %q", code)
		}
	}
	return Currency(c), nil
}

// String returns the currency code
func (c Currency) String() string {
	return string(c)
}

// RateScale is the number of decimal places kept for conversion rates
const RateScale int32 = 10

// FitsScale reports whether v has no significant digits beyond scale places
func FitsScale(v decimal.Decimal, scale int32) bool {
	return v.Equal(v.Truncate(scale))
}

// MinorUnit returns the smallest representable amount at the given scale, e.g. 0.01 for scale 2
func MinorUnit(scale int32) decimal.Decimal {
	return decimal.New(1, -scale)
}

// Money is a value object representing monetary amounts
// It is immutable - all operations return new Money instances
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a new Money with the specified amount and currency
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// Zero returns a zero-value Money in the specified currency
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Add returns a new Money with the sum of both amounts
// Returns error if currencies don't match
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add money with different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{
		amount:   m.amount.Add(other.amount),
		currency: m.currency,
	}, nil
}

// Negate returns a new Money with the sign reversed
func (m Money) Negate() Money {
	return Money{
		amount:   m.amount.Neg(),
		currency: m.currency,
	}
}

// RoundBank rounds using banker's rounding (half to even)
func (m Money) RoundBank(places int32) Money {
	return Money{
		amount:   m.amount.RoundBank(places),
		currency: m.currency,
	}
}

// ConvertTo converts the amount with rate into target, rounding half-even to scale.
// Converting into the same currency ignores rate.
func (m Money) ConvertTo(target Currency, rate decimal.Decimal, scale int32) (Money, error) {
	if m.currency == target {
		return m.RoundBank(scale), nil
	}
	if !rate.IsPositive() {
		return Money{}, fmt.Errorf("invalid conversion rate %s for %s->%s", rate, m.currency, target)
	}
	return Money{
		amount:   m.amount.Mul(rate).RoundBank(scale),
		currency: target,
	}, nil
}

// Equals returns true if both Money values are equal
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.currency, m.amount.String())
}

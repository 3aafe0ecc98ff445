package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Currency
		wantErr bool
	}{
		{"upper", "USD", USD, false},
		{"lower and padded", " eur ", EUR, false},
		{"empty", "", "", true},
		{"too long", "EURO", "", true},
		{"digits", "U5D", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrency(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinorUnit(t *testing.T) {
	assert.True(t, MinorUnit(2).Equal(decimal.RequireFromString("0.01")))
	assert.True(t, MinorUnit(0).Equal(decimal.NewFromInt(1)))
}

func TestNewMoney(t *testing.T) {
	t.Run("creates money with valid amount and currency", func(t *testing.T) {
		m, err := NewMoney(decimal.NewFromFloat(100.50), CNY)
		require.NoError(t, err)
		assert.Equal(t, CNY, m.Currency())
		assert.True(t, m.Amount().Equal(decimal.NewFromFloat(100.50)))
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromFloat(100), "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestMoney_Add(t *testing.T) {
	a, _ := NewMoney(decimal.NewFromInt(10), USD)
	b, _ := NewMoney(decimal.NewFromInt(5), USD)
	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(decimal.NewFromInt(15)))

	c, _ := NewMoney(decimal.NewFromInt(5), EUR)
	_, err = a.Add(c)
	assert.Error(t, err)
}

func TestMoney_ConvertTo(t *testing.T) {
	t.Run("same currency rounds only", func(t *testing.T) {
		m, _ := NewMoney(decimal.RequireFromString("10.125"), USD)
		got, err := m.ConvertTo(USD, decimal.Zero, 2)
		require.NoError(t, err)
		assert.Equal(t, "10.12", got.Amount().StringFixed(2))
	})

	t.Run("applies rate with half-even rounding", func(t *testing.T) {
		m, _ := NewMoney(decimal.RequireFromString("100"), EUR)
		got, err := m.ConvertTo(USD, decimal.RequireFromString("1.08125"), 2)
		require.NoError(t, err)
		assert.Equal(t, USD, got.Currency())
		assert.Equal(t, "108.12", got.Amount().StringFixed(2))
	})

	t.Run("rejects non-positive rate", func(t *testing.T) {
		m, _ := NewMoney(decimal.NewFromInt(1), EUR)
		_, err := m.ConvertTo(USD, decimal.Zero, 2)
		assert.Error(t, err)
	})
}

func TestMoney_Negate(t *testing.T) {
	m, _ := NewMoney(decimal.NewFromInt(7), JPY)
	n := m.Negate()
	assert.True(t, n.Amount().Equal(decimal.NewFromInt(-7)))
	assert.True(t, n.Negate().Equals(m))
}

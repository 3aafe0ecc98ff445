package inventory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testKey = ItemKey{ItemID: "item-1", WarehouseID: "wh-1"}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseCost(amount string) UnitCost {
	return UnitCost{
		Amount:       d(amount),
		Currency:     "USD",
		FxRateToBase: decimal.NewFromInt(1),
		AmountBase:   d(amount),
	}
}

func newTx(t *testing.T, dir Direction, qty string, docID string, allowNegative bool) *InventoryTransaction {
	t.Helper()
	tx, err := NewInventoryTransaction(TransactionRequest{
		Key:           testKey,
		Direction:     dir,
		Quantity:      d(qty),
		Currency:      "USD",
		AllowNegative: allowNegative,
		Source:        SourceDocument{DocType: "TEST", DocID: docID},
		OccurredAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return tx
}

func newBatch(t *testing.T, seq int64, receivedAt time.Time, qty, cost string) *StockBatch {
	t.Helper()
	b, err := NewStockBatch(testKey, seq, receivedAt, d(qty), baseCost(cost), SourceDocument{DocType: "TEST", DocID: "seed"}, uuid.Nil)
	require.NoError(t, err)
	return b
}

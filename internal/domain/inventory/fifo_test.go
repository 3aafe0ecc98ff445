package inventory

import (
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFIFO_OldestFirst(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b1 := newBatch(t, 1, t0, "5", "10")
	b2 := newBatch(t, 2, t0.Add(time.Hour), "5", "20")

	// passed newest first on purpose
	plan, err := PlanFIFO([]*StockBatch{b2, b1}, d("7"))
	require.NoError(t, err)

	require.Len(t, plan.Parts, 2)
	assert.Equal(t, b1.ID, plan.Parts[0].Batch.ID)
	assert.True(t, plan.Parts[0].Quantity.Equal(d("5")))
	assert.Equal(t, 0, plan.Parts[0].PartN)
	assert.Equal(t, b2.ID, plan.Parts[1].Batch.ID)
	assert.True(t, plan.Parts[1].Quantity.Equal(d("2")))
	assert.Equal(t, 1, plan.Parts[1].PartN)

	assert.False(t, plan.HasShortfall())
	assert.True(t, plan.CostBase().Equal(d("90")), "5*10 + 2*20")

	// planning never mutates batches
	assert.True(t, b1.RemainingQuantity.Equal(d("5")))
	assert.True(t, b2.RemainingQuantity.Equal(d("5")))
}

func TestPlanFIFO_TieBreakBySequence(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := newBatch(t, 7, t0, "3", "1")
	earlier := newBatch(t, 3, t0, "3", "2")

	plan, err := PlanFIFO([]*StockBatch{later, earlier}, d("4"))
	require.NoError(t, err)

	require.Len(t, plan.Parts, 2)
	assert.Equal(t, earlier.ID, plan.Parts[0].Batch.ID)
	assert.Equal(t, later.ID, plan.Parts[1].Batch.ID)
}

func TestPlanFIFO_SkipsExhaustedAndReportsShortfall(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	empty := newBatch(t, 1, t0, "2", "10")
	require.NoError(t, empty.Take(d("2")))
	open := newBatch(t, 2, t0.Add(time.Minute), "3", "10")

	plan, err := PlanFIFO([]*StockBatch{empty, open}, d("5"))
	require.NoError(t, err)

	require.Len(t, plan.Parts, 1)
	assert.Equal(t, open.ID, plan.Parts[0].Batch.ID)
	assert.True(t, plan.Shortfall.Equal(d("2")))
	assert.True(t, plan.Allocated().Equal(d("3")))
	assert.True(t, Available([]*StockBatch{empty, open}).Equal(d("3")))
}

func TestPlanFIFO_RejectsNonPositive(t *testing.T) {
	_, err := PlanFIFO(nil, d("0"))
	assert.Error(t, err)
	_, err = PlanFIFO(nil, d("-1"))
	assert.Error(t, err)
}

func TestStockBatch_Take(t *testing.T) {
	b := newBatch(t, 1, time.Now(), "4", "1")

	require.NoError(t, b.Take(d("4")))
	assert.True(t, b.IsExhausted())

	err := b.Take(d("1"))
	assert.Error(t, err, "must never go below zero")
	assert.True(t, b.RemainingQuantity.IsZero())
}

func TestNewStockBatch_Scale(t *testing.T) {
	src := SourceDocument{DocType: "TEST", DocID: "seed"}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewStockBatch(testKey, 1, at, d("1.2345"), baseCost("3.123456"), src, uuid.Nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		qty  string
		cost UnitCost
	}{
		{"quantity beyond four places", "0.00001", baseCost("1")},
		{"unit cost beyond six places", "1", baseCost("1.1234567")},
		{"rate beyond ten places", "1", UnitCost{Amount: d("2"), Currency: "EUR", FxRateToBase: d("1.10000000001"), AmountBase: d("2.2")}},
		{"base cost beyond six places", "1", UnitCost{Amount: d("2"), Currency: "EUR", FxRateToBase: d("1.1"), AmountBase: d("2.2000001")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStockBatch(testKey, 1, at, d(tt.qty), tt.cost, src, uuid.Nil)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		})
	}
}

package telemetry

import (
	"context"
	"testing"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func newTestLedgerMetrics(t *testing.T) (*LedgerMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProviderWithReader("stockledger-test", reader, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewLedgerMetrics(mp.Meter(ledgerMeterName), zaptest.NewLogger(t))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func intSum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func floatSum(t *testing.T, m metricdata.Metrics) float64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[float64])
	require.True(t, ok, "metric %s is not a float64 sum", m.Name)
	var total float64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestLedgerMetrics_EventTypes(t *testing.T) {
	m, _ := newTestLedgerMetrics(t)
	assert.ElementsMatch(t, []string{
		inventory.EventTypeStockReceived,
		inventory.EventTypeStockConsumed,
		inventory.EventTypeShortfallRecorded,
		finance.EventTypeEntriesPosted,
	}, m.EventTypes())
}

func TestLedgerMetrics_Handle(t *testing.T) {
	m, reader := newTestLedgerMetrics(t)
	ctx := context.Background()
	balanceID := uuid.New()

	events := []shared.DomainEvent{
		&inventory.StockReceivedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeStockReceived, inventory.AggregateTypeInventoryBalance, balanceID),
			WarehouseID:     "wh1",
			Quantity:        decimal.NewFromInt(10),
			SourceDocType:   "SUPPLY_RECEIPT",
		},
		&inventory.StockConsumedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeStockConsumed, inventory.AggregateTypeInventoryBalance, balanceID),
			WarehouseID:     "wh1",
			Quantity:        decimal.NewFromInt(12),
			CostBase:        decimal.RequireFromString("60.5"),
			SourceDocType:   "SALE",
		},
		&inventory.ShortfallRecordedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeShortfallRecorded, inventory.AggregateTypeInventoryBalance, balanceID),
			WarehouseID:     "wh1",
			Quantity:        decimal.NewFromInt(2),
			CostPolicy:      inventory.ShortfallCostLastKnown,
		},
		&finance.EntriesPostedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(finance.EventTypeEntriesPosted, finance.AggregateTypeLedgerTransaction, uuid.New()),
			DocType:         "SALE",
			LineCount:       4,
			TotalBase:       decimal.NewFromInt(84),
		},
		&finance.EntriesPostedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(finance.EventTypeEntriesPosted, finance.AggregateTypeLedgerTransaction, uuid.New()),
			DocType:         "SALE",
			LineCount:       4,
			TotalBase:       decimal.NewFromInt(84),
			ReversesDocID:   "so-1",
		},
	}
	for _, e := range events {
		require.NoError(t, m.Handle(ctx, e))
	}

	got := collect(t, reader)
	assert.Equal(t, int64(1), intSum(t, got["inventory.receipts"]))
	assert.Equal(t, int64(1), intSum(t, got["inventory.consumptions"]))
	assert.Equal(t, int64(1), intSum(t, got["inventory.shortfalls"]))
	assert.Equal(t, int64(2), intSum(t, got["ledger.postings"]))
	assert.Equal(t, int64(1), intSum(t, got["ledger.reversals"]))
	assert.InDelta(t, 60.5, floatSum(t, got["inventory.consumed_cost_base"]), 1e-9)
	assert.InDelta(t, 2, floatSum(t, got["inventory.shortfall_quantity"]), 1e-9)
	assert.InDelta(t, 168, floatSum(t, got["ledger.posted_base"]), 1e-9)

	hist, ok := got["ledger.posting_lines"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	docType, ok := hist.DataPoints[0].Attributes.Value(attribute.Key("doc_type"))
	require.True(t, ok)
	assert.Equal(t, "SALE", docType.AsString())
}

func TestLedgerMetrics_UnexpectedEvent(t *testing.T) {
	m, _ := newTestLedgerMetrics(t)
	e := shared.NewBaseDomainEvent("inventory.unknown", inventory.AggregateTypeInventoryBalance, uuid.New())
	err := m.Handle(context.Background(), &e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory.unknown")
}

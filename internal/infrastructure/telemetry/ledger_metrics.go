package telemetry

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const ledgerMeterName = "stockledger/ledger"

// LedgerMetrics counts committed stock movements and postings. It subscribes
// to the engines' domain events, so replays are never counted.
type LedgerMetrics struct {
	receipts        *Counter
	consumptions    *Counter
	shortfalls      *Counter
	postings        *Counter
	reversals       *Counter
	costBase        *FloatCounter
	postedBase      *FloatCounter
	lineCount       *Histogram
	shortfallAmount *FloatCounter
	logger          *zap.Logger
}

// NewLedgerMetrics creates the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter, logger *zap.Logger) (*LedgerMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &LedgerMetrics{logger: logger.Named("ledger_metrics")}
	var err error
	if m.receipts, err = NewCounter(meter, "inventory.receipts", "Stock batches received", "{batch}"); err != nil {
		return nil, err
	}
	if m.consumptions, err = NewCounter(meter, "inventory.consumptions", "Stock consumptions applied", "{transaction}"); err != nil {
		return nil, err
	}
	if m.shortfalls, err = NewCounter(meter, "inventory.shortfalls", "Consumptions beyond available batches", "{movement}"); err != nil {
		return nil, err
	}
	if m.shortfallAmount, err = NewFloatCounter(meter, "inventory.shortfall_quantity", "Quantity consumed beyond available batches", "{unit}"); err != nil {
		return nil, err
	}
	if m.costBase, err = NewFloatCounter(meter, "inventory.consumed_cost_base", "Cost of consumed stock in base currency", "{currency}"); err != nil {
		return nil, err
	}
	if m.postings, err = NewCounter(meter, "ledger.postings", "Documents posted to the ledger", "{document}"); err != nil {
		return nil, err
	}
	if m.reversals, err = NewCounter(meter, "ledger.reversals", "Reversal documents posted", "{document}"); err != nil {
		return nil, err
	}
	if m.postedBase, err = NewFloatCounter(meter, "ledger.posted_base", "Debit total posted in base currency", "{currency}"); err != nil {
		return nil, err
	}
	if m.lineCount, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger.posting_lines",
		Description: "Entries per posted document",
		Unit:        "{entry}",
		Buckets:     []float64{1, 2, 4, 8, 16, 32, 64},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// EventTypes implements shared.EventHandler
func (m *LedgerMetrics) EventTypes() []string {
	return []string{
		inventory.EventTypeStockReceived,
		inventory.EventTypeStockConsumed,
		inventory.EventTypeShortfallRecorded,
		finance.EventTypeEntriesPosted,
	}
}

// Handle implements shared.EventHandler
func (m *LedgerMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *inventory.StockReceivedEvent:
		m.receipts.Inc(ctx,
			attribute.String("warehouse_id", e.WarehouseID),
			attribute.String("doc_type", e.SourceDocType))
	case *inventory.StockConsumedEvent:
		attrs := []attribute.KeyValue{
			attribute.String("warehouse_id", e.WarehouseID),
			attribute.String("doc_type", e.SourceDocType),
		}
		m.consumptions.Inc(ctx, attrs...)
		m.costBase.Add(ctx, e.CostBase.InexactFloat64(), attrs...)
	case *inventory.ShortfallRecordedEvent:
		attrs := []attribute.KeyValue{
			attribute.String("warehouse_id", e.WarehouseID),
			attribute.String("cost_policy", string(e.CostPolicy)),
		}
		m.shortfalls.Inc(ctx, attrs...)
		m.shortfallAmount.Add(ctx, e.Quantity.InexactFloat64(), attrs...)
	case *finance.EntriesPostedEvent:
		attr := attribute.String("doc_type", e.DocType)
		m.postings.Inc(ctx, attr)
		if e.ReversesDocID != "" {
			m.reversals.Inc(ctx, attr)
		}
		m.postedBase.Add(ctx, e.TotalBase.InexactFloat64(), attr)
		m.lineCount.Record(ctx, float64(e.LineCount), attr)
	default:
		return fmt.Errorf("ledger metrics: unexpected event %s", event.EventType())
	}
	return nil
}

var _ shared.EventHandler = (*LedgerMetrics)(nil)

package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockShortfallNotifier struct {
	mu     sync.Mutex
	alerts []ShortfallAlert
	err    error
}

func (n *mockShortfallNotifier) NotifyShortfall(_ context.Context, alert ShortfallAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func TestShortfallHandler_WithEngine(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	notifier := &mockShortfallNotifier{}
	handler := NewShortfallHandler(zaptest.NewLogger(t)).
		WithNotifier(notifier).
		WithReconciler(f.engine)
	ctx := context.Background()

	f.receive(t, "po-1", "2", "7", day0)
	_, err := f.engine.Consume(ctx, consumeReq("so-1", "5", true))
	require.NoError(t, err)

	var shortfall shared.DomainEvent
	for _, e := range f.publisher.events {
		if e.EventType() == inventory.EventTypeShortfallRecorded {
			shortfall = e
		}
	}
	require.NotNil(t, shortfall)
	require.NoError(t, handler.Handle(ctx, shortfall))

	require.Len(t, notifier.alerts, 1)
	alert := notifier.alerts[0]
	assert.Equal(t, item, alert.ItemID)
	assert.Equal(t, "3", alert.Quantity)
	assert.Equal(t, "7", alert.UnitCostBase)
	assert.Equal(t, "-3", alert.BalanceQuantity)
	assert.Equal(t, "last_known", alert.CostPolicy)
	assert.Equal(t, "-3", alert.QuantityDrift)
	assert.Equal(t, int64(1), alert.UnreconciledMovements)
}

func TestShortfallHandler_Handle(t *testing.T) {
	balance := inventory.NewInventoryBalance(inventory.ItemKey{ItemID: item, WarehouseID: wh})
	event := &inventory.ShortfallRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeShortfallRecorded, inventory.AggregateTypeInventoryBalance, balance.ID),
		ItemID:          item,
		WarehouseID:     wh,
		TransactionID:   uuid.New(),
		Quantity:        dec("1"),
		BalanceQuantity: dec("-1"),
	}

	t.Run("notifier failure does not fail handling", func(t *testing.T) {
		notifier := &mockShortfallNotifier{err: errors.New("smtp down")}
		handler := NewShortfallHandler(zaptest.NewLogger(t)).WithNotifier(notifier)
		require.NoError(t, handler.Handle(context.Background(), event))
		assert.Len(t, notifier.alerts, 1)
	})

	t.Run("without notifier", func(t *testing.T) {
		handler := NewShortfallHandler(nil)
		require.NoError(t, handler.Handle(context.Background(), event))
	})

	t.Run("rejects other events", func(t *testing.T) {
		handler := NewShortfallHandler(zaptest.NewLogger(t))
		other := &inventory.StockConsumedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeStockConsumed, inventory.AggregateTypeInventoryBalance, balance.ID),
		}
		require.Error(t, handler.Handle(context.Background(), other))
	})

	t.Run("logging notifier", func(t *testing.T) {
		handler := NewShortfallHandler(zaptest.NewLogger(t)).
			WithNotifier(NewLoggingShortfallNotifier(zaptest.NewLogger(t)))
		require.NoError(t, handler.Handle(context.Background(), event))
	})

	assert.Equal(t, []string{inventory.EventTypeShortfallRecorded}, NewShortfallHandler(nil).EventTypes())
}

package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_InSync(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	ctx := context.Background()

	f.receive(t, "po-1", "5", "10", day0)
	f.receive(t, "po-2", "5", "20", day0.Add(time.Hour))
	_, err := f.engine.Consume(ctx, consumeReq("so-1", "6", false))
	require.NoError(t, err)

	report, err := f.engine.Reconcile(ctx, item, wh)
	require.NoError(t, err)
	assert.True(t, report.InSync())
	assert.True(t, dec("4").Equal(report.BatchQuantity))
	assert.True(t, dec("80").Equal(report.BatchValue))
	assert.Zero(t, report.UnreconciledMovements)

	_, err = f.engine.Reconcile(ctx, "nothing", wh)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRepair(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	ctx := context.Background()

	f.receive(t, "po-1", "5", "10", day0)
	require.NoError(t, f.db.Exec(
		"UPDATE inventory_balances SET quantity = ?, book_value = ? WHERE item_id = ? AND warehouse_id = ?",
		"7", "65", item, wh).Error)

	report, err := f.engine.Reconcile(ctx, item, wh)
	require.NoError(t, err)
	require.False(t, report.InSync())
	assert.True(t, dec("2").Equal(report.QuantityDrift))
	assert.True(t, dec("15").Equal(report.ValueDrift))

	// reporting never corrects
	bal, err := f.engine.GetBalance(ctx, item, wh)
	require.NoError(t, err)
	assert.True(t, dec("7").Equal(bal.Quantity))

	after, err := f.engine.Repair(ctx, report)
	require.NoError(t, err)
	assert.True(t, after.InSync())

	bal, err = f.engine.GetBalance(ctx, item, wh)
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(bal.Quantity))
	assert.True(t, dec("50").Equal(bal.BookValue))

	t.Run("stale report is refused", func(t *testing.T) {
		_, err := f.engine.Repair(ctx, report)
		require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("repair of an in-sync state is a no-op", func(t *testing.T) {
		current, err := f.engine.Reconcile(ctx, item, wh)
		require.NoError(t, err)
		again, err := f.engine.Repair(ctx, current)
		require.NoError(t, err)
		assert.Equal(t, current.BalanceVersion, again.BalanceVersion)
	})

	t.Run("stock moved after the report", func(t *testing.T) {
		require.NoError(t, f.db.Exec(
			"UPDATE inventory_balances SET quantity = ? WHERE item_id = ? AND warehouse_id = ?",
			"9", item, wh).Error)
		drifted, err := f.engine.Reconcile(ctx, item, wh)
		require.NoError(t, err)

		f.receive(t, "po-2", "1", "10", day0.Add(time.Hour))

		_, err = f.engine.Repair(ctx, drifted)
		require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := f.engine.Repair(ctx, &inventory.ReconciliationReport{ItemID: "ghost", WarehouseID: wh})
		require.ErrorIs(t, err, shared.ErrNotFound)
		assert.Equal(t, int64(1), f.count(t, "inventory_balances"))
	})

	t.Run("nil report", func(t *testing.T) {
		_, err := f.engine.Repair(ctx, nil)
		require.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}

func TestReconcileAll(t *testing.T) {
	f := newEngineFixture(t, EngineConfig{})
	ctx := context.Background()

	f.receive(t, "po-1", "5", "10", day0)
	_, err := f.engine.Receive(ctx, ReceiveRequest{
		ItemID: "gadget", WarehouseID: wh, Quantity: dec("1"), UnitCost: dec("3"), Currency: "USD",
		Source: inventory.SourceDocument{DocType: "SUPPLY_RECEIPT", DocID: "po-2"}, ReceivedAt: day0,
	})
	require.NoError(t, err)

	reports, err := f.engine.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.InSync(), r.Key().String())
	}
}

package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationReport compares the balance projection of one item@warehouse
// with the sums over its batches. It is produced on demand and never applied
// implicitly.
type ReconciliationReport struct {
	ItemID                string          `json:"item_id"`
	WarehouseID           string          `json:"warehouse_id"`
	BalanceVersion        int             `json:"balance_version"`
	ProjectedQuantity     decimal.Decimal `json:"projected_quantity"`
	BatchQuantity         decimal.Decimal `json:"batch_quantity"`
	QuantityDrift         decimal.Decimal `json:"quantity_drift"`
	ProjectedValue        decimal.Decimal `json:"projected_value"`
	BatchValue            decimal.Decimal `json:"batch_value"`
	ValueDrift            decimal.Decimal `json:"value_drift"`
	UnreconciledMovements int64           `json:"unreconciled_movements"`
	GeneratedAt           time.Time       `json:"generated_at"`
}

// NewReconciliationReport builds the diff between balance and batches.
// Drift is projection minus batch sum.
func NewReconciliationReport(balance *InventoryBalance, batches []*StockBatch, unreconciled int64) *ReconciliationReport {
	qty := decimal.Zero
	value := decimal.Zero
	for _, b := range batches {
		qty = qty.Add(b.RemainingQuantity)
		value = value.Add(b.RemainingValueBase())
	}
	return &ReconciliationReport{
		ItemID:                balance.ItemID,
		WarehouseID:           balance.WarehouseID,
		BalanceVersion:        balance.Version,
		ProjectedQuantity:     balance.Quantity,
		BatchQuantity:         qty,
		QuantityDrift:         balance.Quantity.Sub(qty),
		ProjectedValue:        balance.BookValue,
		BatchValue:            value,
		ValueDrift:            balance.BookValue.Sub(value),
		UnreconciledMovements: unreconciled,
		GeneratedAt:           time.Now(),
	}
}

// Key returns the item@warehouse of the report
func (r *ReconciliationReport) Key() ItemKey {
	return ItemKey{ItemID: r.ItemID, WarehouseID: r.WarehouseID}
}

// InSync returns true when the projection equals the batch sums
func (r *ReconciliationReport) InSync() bool {
	return r.QuantityDrift.IsZero() && r.ValueDrift.IsZero()
}

// SameState returns true when both reports describe the same stored state
func (r *ReconciliationReport) SameState(other *ReconciliationReport) bool {
	return r.ItemID == other.ItemID &&
		r.WarehouseID == other.WarehouseID &&
		r.BalanceVersion == other.BalanceVersion &&
		r.ProjectedQuantity.Equal(other.ProjectedQuantity) &&
		r.BatchQuantity.Equal(other.BatchQuantity) &&
		r.ProjectedValue.Equal(other.ProjectedValue) &&
		r.BatchValue.Equal(other.BatchValue)
}

// ApplyTo resets the balance projection to the batch sums of the report
func (r *ReconciliationReport) ApplyTo(balance *InventoryBalance) {
	balance.Apply(r.QuantityDrift.Neg(), r.ValueDrift.Neg())
}

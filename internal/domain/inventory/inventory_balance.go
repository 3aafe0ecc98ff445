package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeInventoryBalance is the aggregate type of stock events
const AggregateTypeInventoryBalance = "InventoryBalance"

// InventoryBalance is the projection of stock held for one item@warehouse.
// Quantity equals the sum of batch remaining quantities unless a shortfall
// was recorded; BookValue is in base currency.
type InventoryBalance struct {
	shared.BaseAggregateRoot
	ItemID            string
	WarehouseID       string
	Quantity          decimal.Decimal
	BookValue         decimal.Decimal
	LastUnitCostBase  decimal.Decimal
	LastBatchSequence int64
}

// NewInventoryBalance creates an empty balance
func NewInventoryBalance(key ItemKey) *InventoryBalance {
	return &InventoryBalance{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ItemID:            key.ItemID,
		WarehouseID:       key.WarehouseID,
		Quantity:          decimal.Zero,
		BookValue:         decimal.Zero,
		LastUnitCostBase:  decimal.Zero,
	}
}

// Key returns the item@warehouse of the balance
func (b *InventoryBalance) Key() ItemKey {
	return ItemKey{ItemID: b.ItemID, WarehouseID: b.WarehouseID}
}

// Apply adds a signed quantity and value delta
func (b *InventoryBalance) Apply(quantityDelta, valueDelta decimal.Decimal) {
	b.Quantity = b.Quantity.Add(quantityDelta)
	b.BookValue = b.BookValue.Add(valueDelta)
	b.Touch(time.Now())
}

// NextBatchSequence reserves the creation sequence for a new batch
func (b *InventoryBalance) NextBatchSequence() int64 {
	b.LastBatchSequence++
	return b.LastBatchSequence
}

// IsNegative returns true when more was consumed than received
func (b *InventoryBalance) IsNegative() bool {
	return b.Quantity.IsNegative()
}

// AverageUnitCost returns book value per unit, zero when nothing is held
func (b *InventoryBalance) AverageUnitCost() decimal.Decimal {
	if !b.Quantity.IsPositive() {
		return decimal.Zero
	}
	return b.BookValue.DivRound(b.Quantity, UnitCostScale)
}

// BalanceView is the read-only answer to a balance query
type BalanceView struct {
	ItemID      string
	WarehouseID string
	Quantity    decimal.Decimal
	BookValue   decimal.Decimal
}

// View returns the read-only view of the balance
func (b *InventoryBalance) View() BalanceView {
	return BalanceView{
		ItemID:      b.ItemID,
		WarehouseID: b.WarehouseID,
		Quantity:    b.Quantity,
		BookValue:   b.BookValue,
	}
}

package inventory

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeStockReceived     = "inventory.stock_received"
	EventTypeStockConsumed     = "inventory.stock_consumed"
	EventTypeShortfallRecorded = "inventory.shortfall_recorded"
)

// StockReceivedEvent is raised when a new batch is received
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	ItemID        string          `json:"item_id"`
	WarehouseID   string          `json:"warehouse_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	BatchID       uuid.UUID       `json:"batch_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCostBase  decimal.Decimal `json:"unit_cost_base"`
	SourceDocType string          `json:"source_doc_type"`
	SourceDocID   string          `json:"source_doc_id"`
}

// NewStockReceivedEvent creates a new StockReceivedEvent
func NewStockReceivedEvent(balance *InventoryBalance, tx *InventoryTransaction, batch *StockBatch) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReceived, AggregateTypeInventoryBalance, balance.ID),
		ItemID:          balance.ItemID,
		WarehouseID:     balance.WarehouseID,
		TransactionID:   tx.ID,
		BatchID:         batch.ID,
		Quantity:        batch.OriginalQuantity,
		UnitCostBase:    batch.UnitCostBase,
		SourceDocType:   tx.SourceDocType,
		SourceDocID:     tx.SourceDocID,
	}
}

// StockConsumedEvent is raised when stock leaves the warehouse
type StockConsumedEvent struct {
	shared.BaseDomainEvent
	ItemID        string          `json:"item_id"`
	WarehouseID   string          `json:"warehouse_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	CostBase      decimal.Decimal `json:"cost_base"`
	Parts         int             `json:"parts"`
	SourceDocType string          `json:"source_doc_type"`
	SourceDocID   string          `json:"source_doc_id"`
}

// NewStockConsumedEvent creates a new StockConsumedEvent
func NewStockConsumedEvent(balance *InventoryBalance, tx *InventoryTransaction, quantity, costBase decimal.Decimal, parts int) *StockConsumedEvent {
	return &StockConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockConsumed, AggregateTypeInventoryBalance, balance.ID),
		ItemID:          balance.ItemID,
		WarehouseID:     balance.WarehouseID,
		TransactionID:   tx.ID,
		Quantity:        quantity,
		CostBase:        costBase,
		Parts:           parts,
		SourceDocType:   tx.SourceDocType,
		SourceDocID:     tx.SourceDocID,
	}
}

// ShortfallRecordedEvent is raised when stock was consumed beyond the batches
// and the balance needs reconciliation
type ShortfallRecordedEvent struct {
	shared.BaseDomainEvent
	ItemID          string              `json:"item_id"`
	WarehouseID     string              `json:"warehouse_id"`
	TransactionID   uuid.UUID           `json:"transaction_id"`
	Quantity        decimal.Decimal     `json:"quantity"`
	UnitCostBase    decimal.Decimal     `json:"unit_cost_base"`
	CostPolicy      ShortfallCostPolicy `json:"cost_policy"`
	BalanceQuantity decimal.Decimal     `json:"balance_quantity"`
}

// NewShortfallRecordedEvent creates a new ShortfallRecordedEvent
func NewShortfallRecordedEvent(balance *InventoryBalance, tx *InventoryTransaction, movement *StockMovement) *ShortfallRecordedEvent {
	return &ShortfallRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeShortfallRecorded, AggregateTypeInventoryBalance, balance.ID),
		ItemID:          balance.ItemID,
		WarehouseID:     balance.WarehouseID,
		TransactionID:   tx.ID,
		Quantity:        movement.Quantity.Neg(),
		UnitCostBase:    movement.UnitCostBase,
		CostPolicy:      movement.CostPolicy,
		BalanceQuantity: balance.Quantity,
	}
}

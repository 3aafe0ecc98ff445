package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnitCostScale is the number of decimal places kept for unit costs
const UnitCostScale int32 = 6

// QuantityScale is the number of decimal places kept for quantities
const QuantityScale int32 = 4

func checkQuantityScale(q decimal.Decimal) error {
	if !valueobject.FitsScale(q, QuantityScale) {
		return fmt.Errorf("%w: quantity %s has more than %d decimal places", shared.ErrInvalidInput, q, QuantityScale)
	}
	return nil
}

// StockMovement is an immutable stock ledger line. Quantity is signed:
// positive for stock entering the warehouse, negative for stock leaving it.
// An outbound request that spans several batches produces one movement per batch part.
type StockMovement struct {
	shared.BaseEntity
	TransactionID       uuid.UUID
	IdempotencyKey      string
	Direction           Direction
	ItemID              string
	WarehouseID         string
	Quantity            decimal.Decimal
	BatchID             *uuid.UUID // nil for shortfall movements
	PartN               *int
	UnitCostBase        decimal.Decimal
	LineCostBase        decimal.Decimal // signed like Quantity
	SourceDocType       string
	SourceDocID         string
	SourceLineID        string
	NeedsReconciliation bool
	CostPolicy          ShortfallCostPolicy // set on shortfall movements only
	OccurredAt          time.Time
}

func newMovement(tx *InventoryTransaction, quantity, unitCostBase decimal.Decimal) *StockMovement {
	return &StockMovement{
		BaseEntity:    shared.NewBaseEntity(),
		TransactionID: tx.ID,
		Direction:     tx.Direction,
		ItemID:        tx.ItemID,
		WarehouseID:   tx.WarehouseID,
		Quantity:      quantity,
		UnitCostBase:  unitCostBase,
		LineCostBase:  quantity.Mul(unitCostBase),
		SourceDocType: tx.SourceDocType,
		SourceDocID:   tx.SourceDocID,
		SourceLineID:  tx.SourceLineID,
		OccurredAt:    tx.OccurredAt,
	}
}

// NewInboundMovement records the receipt of batch
func NewInboundMovement(tx *InventoryTransaction, batch *StockBatch) *StockMovement {
	m := newMovement(tx, batch.OriginalQuantity, batch.UnitCostBase)
	batchID := batch.ID
	m.BatchID = &batchID
	m.IdempotencyKey = tx.Source().MovementKey(tx.Direction, tx.ItemID, tx.WarehouseID, "", nil)
	return m
}

// NewOutboundMovement records one FIFO part taken from a batch
func NewOutboundMovement(tx *InventoryTransaction, part AllocationPart) *StockMovement {
	m := newMovement(tx, part.Quantity.Neg(), part.Batch.UnitCostBase)
	batchID := part.Batch.ID
	partN := part.PartN
	m.BatchID = &batchID
	m.PartN = &partN
	m.IdempotencyKey = tx.Source().MovementKey(tx.Direction, tx.ItemID, tx.WarehouseID, batchID.String(), &partN)
	return m
}

// NewShortfallMovement records stock consumed beyond what the batches hold.
// It references no batch and is flagged for reconciliation.
func NewShortfallMovement(
	tx *InventoryTransaction,
	quantity, unitCostBase decimal.Decimal,
	partN int,
	policy ShortfallCostPolicy,
) *StockMovement {
	m := newMovement(tx, quantity.Neg(), unitCostBase)
	m.PartN = &partN
	m.NeedsReconciliation = true
	m.CostPolicy = policy
	m.IdempotencyKey = tx.Source().MovementKey(tx.Direction, tx.ItemID, tx.WarehouseID, "", &partN)
	return m
}

// IsShortfall returns true for movements not backed by a batch
func (m *StockMovement) IsShortfall() bool {
	return m.BatchID == nil && m.Quantity.IsNegative()
}

package inventory

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiveRequest represents a request to receive stock into a new batch
type ReceiveRequest struct {
	ItemID      string                   `json:"item_id"`
	WarehouseID string                   `json:"warehouse_id"`
	Quantity    decimal.Decimal          `json:"quantity"`
	UnitCost    decimal.Decimal          `json:"unit_cost"`
	Currency    string                   `json:"currency"`
	Source      inventory.SourceDocument `json:"source"`
	ReceivedAt  time.Time                `json:"received_at"` // zero means now
}

// ConsumeRequest represents a request to take stock out oldest batch first
type ConsumeRequest struct {
	ItemID        string                   `json:"item_id"`
	WarehouseID   string                   `json:"warehouse_id"`
	Quantity      decimal.Decimal          `json:"quantity"`
	Source        inventory.SourceDocument `json:"source"`
	AllowNegative bool                     `json:"allow_negative"`
	OccurredAt    time.Time                `json:"occurred_at"`
}

// AdjustRequest represents a corrective stock change. A positive quantity
// creates a batch; a negative one consumes and may drive the balance below zero.
// A positive adjustment without UnitCost is valued at the last known base unit cost.
type AdjustRequest struct {
	ItemID      string                   `json:"item_id"`
	WarehouseID string                   `json:"warehouse_id"`
	Quantity    decimal.Decimal          `json:"quantity"`
	UnitCost    *decimal.Decimal         `json:"unit_cost,omitempty"`
	Currency    string                   `json:"currency,omitempty"`
	Source      inventory.SourceDocument `json:"source"`
	OccurredAt  time.Time                `json:"occurred_at"`
}

// MovementResponse represents a stock movement in responses
type MovementResponse struct {
	ID                  uuid.UUID       `json:"id"`
	IdempotencyKey      string          `json:"idempotency_key"`
	Direction           string          `json:"direction"`
	ItemID              string          `json:"item_id"`
	WarehouseID         string          `json:"warehouse_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	BatchID             *uuid.UUID      `json:"batch_id,omitempty"`
	PartN               *int            `json:"part_n,omitempty"`
	UnitCostBase        decimal.Decimal `json:"unit_cost_base"`
	LineCostBase        decimal.Decimal `json:"line_cost_base"`
	SourceDocType       string          `json:"source_doc_type"`
	SourceDocID         string          `json:"source_doc_id"`
	SourceLineID        string          `json:"source_line_id,omitempty"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
	CostPolicy          string          `json:"cost_policy,omitempty"`
	OccurredAt          time.Time       `json:"occurred_at"`
}

// BatchResponse represents a stock batch in responses
type BatchResponse struct {
	ID                uuid.UUID       `json:"id"`
	Sequence          int64           `json:"sequence"`
	ReceivedAt        time.Time       `json:"received_at"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	Currency          string          `json:"currency"`
	FxRateToBase      decimal.Decimal `json:"fx_rate_to_base"`
	UnitCostBase      decimal.Decimal `json:"unit_cost_base"`
	OriginalQuantity  decimal.Decimal `json:"original_quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
}

// ReceiveResult is returned by Receive. Replayed is true when the call
// matched an operation that had already been applied.
type ReceiveResult struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	Batch         BatchResponse    `json:"batch"`
	Movement      MovementResponse `json:"movement"`
	CostBase      decimal.Decimal  `json:"cost_base"`
	Replayed      bool             `json:"replayed"`
}

// ConsumeResult is returned by Consume. CostBase is the positive base-currency
// cost of the consumed stock, the amount booked as cost of goods.
type ConsumeResult struct {
	TransactionID uuid.UUID          `json:"transaction_id"`
	Movements     []MovementResponse `json:"movements"`
	CostBase      decimal.Decimal    `json:"cost_base"`
	Shortfall     decimal.Decimal    `json:"shortfall"`
	Replayed      bool               `json:"replayed"`
}

// AdjustResult is returned by Adjust. Batch is set for positive adjustments only.
type AdjustResult struct {
	TransactionID uuid.UUID          `json:"transaction_id"`
	Batch         *BatchResponse     `json:"batch,omitempty"`
	Movements     []MovementResponse `json:"movements"`
	CostBase      decimal.Decimal    `json:"cost_base"` // signed: positive in, negative out
	Replayed      bool               `json:"replayed"`
}

// BalanceResponse is the answer to a balance query
type BalanceResponse struct {
	ItemID      string          `json:"item_id"`
	WarehouseID string          `json:"warehouse_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	BookValue   decimal.Decimal `json:"book_value"`
}

// MovementListFilter represents paging options for movement listings
type MovementListFilter struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	OrderBy  string `json:"order_by"`
	OrderDir string `json:"order_dir"`
}

// ToMovementResponse converts a domain StockMovement to MovementResponse
func ToMovementResponse(m *inventory.StockMovement) MovementResponse {
	return MovementResponse{
		ID:                  m.ID,
		IdempotencyKey:      m.IdempotencyKey,
		Direction:           string(m.Direction),
		ItemID:              m.ItemID,
		WarehouseID:         m.WarehouseID,
		Quantity:            m.Quantity,
		BatchID:             m.BatchID,
		PartN:               m.PartN,
		UnitCostBase:        m.UnitCostBase,
		LineCostBase:        m.LineCostBase,
		SourceDocType:       m.SourceDocType,
		SourceDocID:         m.SourceDocID,
		SourceLineID:        m.SourceLineID,
		NeedsReconciliation: m.NeedsReconciliation,
		CostPolicy:          string(m.CostPolicy),
		OccurredAt:          m.OccurredAt,
	}
}

// ToMovementResponses converts a slice of movements
func ToMovementResponses(movements []*inventory.StockMovement) []MovementResponse {
	out := make([]MovementResponse, len(movements))
	for i, m := range movements {
		out[i] = ToMovementResponse(m)
	}
	return out
}

// ToBatchResponse converts a domain StockBatch to BatchResponse
func ToBatchResponse(b *inventory.StockBatch) BatchResponse {
	return BatchResponse{
		ID:                b.ID,
		Sequence:          b.Sequence,
		ReceivedAt:        b.ReceivedAt,
		UnitCost:          b.UnitCost,
		Currency:          b.Currency,
		FxRateToBase:      b.FxRateToBase,
		UnitCostBase:      b.UnitCostBase,
		OriginalQuantity:  b.OriginalQuantity,
		RemainingQuantity: b.RemainingQuantity,
	}
}

// ToBalanceResponse converts a balance view to BalanceResponse
func ToBalanceResponse(v inventory.BalanceView) BalanceResponse {
	return BalanceResponse{
		ItemID:      v.ItemID,
		WarehouseID: v.WarehouseID,
		Quantity:    v.Quantity,
		BookValue:   v.BookValue,
	}
}

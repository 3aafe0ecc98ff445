package inventory

import (
	"fmt"
	"strconv"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/idemkey"
	"github.com/shopspring/decimal"
)

// InventoryTransaction is the header of one logical stock operation
// (one receive, consume or adjust call). It is keyed by the transaction-level
// idempotency key and carries a fingerprint of the request that created it.
// Once created, transactions cannot be modified.
type InventoryTransaction struct {
	shared.BaseEntity
	IdempotencyKey string
	Fingerprint    string
	Direction      Direction
	ItemID         string
	WarehouseID    string
	Quantity       decimal.Decimal // signed requested quantity
	TotalCostBase  decimal.Decimal // signed, sum of the movements' line cost
	AllowNegative  bool
	SourceDocType  string
	SourceDocID    string
	SourceLineID   string
	OccurredAt     time.Time
}

// TransactionRequest is the canonical payload of a stock operation.
type TransactionRequest struct {
	Key           ItemKey
	Direction     Direction
	Quantity      decimal.Decimal // signed
	UnitCost      decimal.Decimal
	Currency      string
	AllowNegative bool
	Source        SourceDocument
	OccurredAt    time.Time
}

// Fingerprint returns the payload fingerprint used to detect key reuse with a different payload
func (r TransactionRequest) Fingerprint() string {
	return idemkey.Fingerprint(
		string(r.Direction),
		r.Key.ItemID,
		r.Key.WarehouseID,
		r.Quantity.String(),
		r.UnitCost.String(),
		r.Currency,
		strconv.FormatBool(r.AllowNegative),
	)
}

// NewInventoryTransaction creates the header for a request
func NewInventoryTransaction(req TransactionRequest) (*InventoryTransaction, error) {
	if !req.Direction.IsValid() {
		return nil, fmt.Errorf("%w: unknown direction %q", shared.ErrInvalidInput, req.Direction)
	}
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity.IsZero() {
		return nil, fmt.Errorf("%w: quantity must not be zero", shared.ErrInvalidInput)
	}
	if err := checkQuantityScale(req.Quantity); err != nil {
		return nil, err
	}
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return &InventoryTransaction{
		BaseEntity:     shared.NewBaseEntity(),
		IdempotencyKey: req.Source.TransactionKey(req.Direction),
		Fingerprint:    req.Fingerprint(),
		Direction:      req.Direction,
		ItemID:         req.Key.ItemID,
		WarehouseID:    req.Key.WarehouseID,
		Quantity:       req.Quantity,
		TotalCostBase:  decimal.Zero,
		AllowNegative:  req.AllowNegative,
		SourceDocType:  req.Source.DocType,
		SourceDocID:    req.Source.DocID,
		SourceLineID:   req.Source.LineID,
		OccurredAt:     occurredAt,
	}, nil
}

// Source returns the source document of the transaction
func (t *InventoryTransaction) Source() SourceDocument {
	return SourceDocument{DocType: t.SourceDocType, DocID: t.SourceDocID, LineID: t.SourceLineID}
}

// Key returns the item@warehouse of the transaction
func (t *InventoryTransaction) Key() ItemKey {
	return ItemKey{ItemID: t.ItemID, WarehouseID: t.WarehouseID}
}

// CheckReplay compares a stored header with an incoming fingerprint.
// A different fingerprint under the same key is an integrity violation.
func (t *InventoryTransaction) CheckReplay(fingerprint string) error {
	if t.Fingerprint != fingerprint {
		return shared.NewIdempotencyConflictError(t.IdempotencyKey, t.Fingerprint, fingerprint)
	}
	return nil
}

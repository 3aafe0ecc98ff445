package inventory

import (
	"fmt"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/idemkey"
)

// Direction is the physical direction of a stock operation
type Direction string

const (
	DirectionIn     Direction = "IN"
	DirectionOut    Direction = "OUT"
	DirectionAdjust Direction = "ADJUST"
)

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// IsValid returns true if the direction is known
func (d Direction) IsValid() bool {
	switch d {
	case DirectionIn, DirectionOut, DirectionAdjust:
		return true
	}
	return false
}

func (d Direction) operation() idemkey.Operation {
	return idemkey.Operation(d)
}

// SourceDocument is the caller-supplied identity of the business document
// that caused a stock operation. It is the only input to idempotency keys.
type SourceDocument struct {
	DocType string
	DocID   string
	LineID  string
}

// Validate checks that the document type and id are present
func (s SourceDocument) Validate() error {
	if strings.TrimSpace(s.DocType) == "" {
		return fmt.Errorf("%w: source document type is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(s.DocID) == "" {
		return fmt.Errorf("%w: source document id is required", shared.ErrInvalidInput)
	}
	if strings.Contains(s.DocType+s.DocID+s.LineID, ":") {
		return fmt.Errorf("%w: source document identity must not contain ':'", shared.ErrInvalidInput)
	}
	return nil
}

// TransactionKey returns the transaction-level key for the given direction
func (s SourceDocument) TransactionKey(dir Direction) string {
	return idemkey.TransactionKey(idemkey.TransactionKeyParams{
		SourceDocType: s.DocType,
		SourceDocID:   s.DocID,
		Operation:     dir.operation(),
		LineID:        s.LineID,
	})
}

// MovementKey returns the movement-level key for one movement part.
// batchID is empty for inbound and shortfall movements; partN is nil for inbound movements.
func (s SourceDocument) MovementKey(dir Direction, itemID, warehouseID, batchID string, partN *int) string {
	return idemkey.MovementKey(idemkey.MovementKeyParams{
		SourceDocType: s.DocType,
		SourceDocID:   s.DocID,
		Direction:     dir.operation(),
		ItemID:        itemID,
		WarehouseID:   warehouseID,
		BatchID:       batchID,
		PartN:         partN,
		LineID:        s.LineID,
	})
}

// ShortfallCostPolicy decides the unit cost assigned to stock consumed beyond
// what the batches hold.
type ShortfallCostPolicy string

const (
	// ShortfallCostLastKnown uses the base unit cost of the most recently received batch
	ShortfallCostLastKnown ShortfallCostPolicy = "last_known"
	// ShortfallCostZero books the shortfall at zero cost
	ShortfallCostZero ShortfallCostPolicy = "zero"
)

// ParseShortfallCostPolicy parses a policy name; empty means last_known
func ParseShortfallCostPolicy(s string) (ShortfallCostPolicy, error) {
	switch ShortfallCostPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ShortfallCostLastKnown:
		return ShortfallCostLastKnown, nil
	case ShortfallCostZero:
		return ShortfallCostZero, nil
	}
	return "", fmt.Errorf("%w: unknown shortfall cost policy %q", shared.ErrInvalidInput, s)
}

// ItemKey identifies stock of one item held in one warehouse
type ItemKey struct {
	ItemID      string
	WarehouseID string
}

// Validate checks both parts are present
func (k ItemKey) Validate() error {
	if strings.TrimSpace(k.ItemID) == "" {
		return fmt.Errorf("%w: item id is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(k.WarehouseID) == "" {
		return fmt.Errorf("%w: warehouse id is required", shared.ErrInvalidInput)
	}
	if strings.Contains(k.ItemID+k.WarehouseID, ":") {
		return fmt.Errorf("%w: item and warehouse ids must not contain ':'", shared.ErrInvalidInput)
	}
	return nil
}

// LockKey returns the critical-section key for this item@warehouse
func (k ItemKey) LockKey() string {
	return shared.LockKey("stock", k.ItemID, k.WarehouseID)
}

// String returns item@warehouse
func (k ItemKey) String() string {
	return k.ItemID + "@" + k.WarehouseID
}

package inventory

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InsufficientStockError reports a consume request the batches cannot cover.
// The caller may retry with a smaller quantity or with negatives allowed.
type InsufficientStockError struct {
	ItemID      string
	WarehouseID string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s@%s: requested %s, available %s",
		e.ItemID, e.WarehouseID, e.Requested, e.Available)
}

// Unwrap allows errors.Is(err, shared.ErrInsufficientStock)
func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

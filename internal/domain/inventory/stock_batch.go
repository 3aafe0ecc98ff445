package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockBatch represents a lot of received inventory.
// RemainingQuantity only ever decreases, and never below zero.
type StockBatch struct {
	shared.BaseEntity
	ItemID            string
	WarehouseID       string
	Sequence          int64     // creation order within the item@warehouse, FIFO tie-break
	ReceivedAt        time.Time // FIFO order
	UnitCost          decimal.Decimal
	Currency          string
	FxRateToBase      decimal.Decimal
	UnitCostBase      decimal.Decimal
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	SourceDocType     string
	SourceDocID       string
	SourceLineID      string
	TransactionID     uuid.UUID
}

// NewStockBatch creates a batch holding the full received quantity
func NewStockBatch(
	key ItemKey,
	sequence int64,
	receivedAt time.Time,
	quantity decimal.Decimal,
	cost UnitCost,
	source SourceDocument,
	transactionID uuid.UUID,
) (*StockBatch, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: batch quantity must be positive", shared.ErrInvalidInput)
	}
	if err := checkQuantityScale(quantity); err != nil {
		return nil, err
	}
	if err := cost.Validate(); err != nil {
		return nil, err
	}
	return &StockBatch{
		BaseEntity:        shared.NewBaseEntity(),
		ItemID:            key.ItemID,
		WarehouseID:       key.WarehouseID,
		Sequence:          sequence,
		ReceivedAt:        receivedAt,
		UnitCost:          cost.Amount,
		Currency:          cost.Currency,
		FxRateToBase:      cost.FxRateToBase,
		UnitCostBase:      cost.AmountBase,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		SourceDocType:     source.DocType,
		SourceDocID:       source.DocID,
		SourceLineID:      source.LineID,
		TransactionID:     transactionID,
	}, nil
}

// Key returns the item@warehouse the batch belongs to
func (b *StockBatch) Key() ItemKey {
	return ItemKey{ItemID: b.ItemID, WarehouseID: b.WarehouseID}
}

// Take removes quantity from the batch. It fails rather than going below zero.
func (b *StockBatch) Take(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: take quantity must be positive", shared.ErrInvalidInput)
	}
	if quantity.GreaterThan(b.RemainingQuantity) {
		return fmt.Errorf("%w: batch %s holds %s, cannot take %s",
			shared.ErrInvalidState, b.ID, b.RemainingQuantity, quantity)
	}
	b.RemainingQuantity = b.RemainingQuantity.Sub(quantity)
	b.Touch(time.Now())
	return nil
}

// IsExhausted returns true once nothing remains
func (b *StockBatch) IsExhausted() bool {
	return !b.RemainingQuantity.IsPositive()
}

// RemainingValueBase returns the base-currency value of what remains
func (b *StockBatch) RemainingValueBase() decimal.Decimal {
	return b.RemainingQuantity.Mul(b.UnitCostBase)
}

// UnitCost is a unit cost in its document currency plus its base-currency equivalent
type UnitCost struct {
	Amount       decimal.Decimal
	Currency     string
	FxRateToBase decimal.Decimal
	AmountBase   decimal.Decimal
}

// Validate checks the cost is usable for a batch
func (c UnitCost) Validate() error {
	if c.Amount.IsNegative() || c.AmountBase.IsNegative() {
		return fmt.Errorf("%w: unit cost cannot be negative", shared.ErrInvalidInput)
	}
	if c.Currency == "" {
		return fmt.Errorf("%w: unit cost currency is required", shared.ErrInvalidInput)
	}
	if !c.FxRateToBase.IsPositive() {
		return fmt.Errorf("%w: conversion rate must be positive", shared.ErrInvalidInput)
	}
	if !valueobject.FitsScale(c.Amount, UnitCostScale) || !valueobject.FitsScale(c.AmountBase, UnitCostScale) {
		return fmt.Errorf("%w: unit cost has more than %d decimal places", shared.ErrInvalidInput, UnitCostScale)
	}
	if !valueobject.FitsScale(c.FxRateToBase, valueobject.RateScale) {
		return fmt.Errorf("%w: conversion rate has more than %d decimal places", shared.ErrInvalidInput, valueobject.RateScale)
	}
	return nil
}

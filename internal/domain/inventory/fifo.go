package inventory

import (
	"fmt"
	"sort"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SortFIFO orders batches oldest receipt first; equal receipt times fall back
// to creation sequence.
func SortFIFO(batches []*StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.Sequence < b.Sequence
	})
}

// AllocationPart is the quantity taken from one batch
type AllocationPart struct {
	Batch    *StockBatch
	Quantity decimal.Decimal
	PartN    int
}

// CostBase returns the base-currency cost of the part
func (p AllocationPart) CostBase() decimal.Decimal {
	return p.Quantity.Mul(p.Batch.UnitCostBase)
}

// AllocationPlan is the outcome of allocating a quantity over batches.
// Shortfall is what the batches could not cover.
type AllocationPlan struct {
	Requested decimal.Decimal
	Parts     []AllocationPart
	Shortfall decimal.Decimal
}

// Allocated returns the quantity covered by batches
func (p *AllocationPlan) Allocated() decimal.Decimal {
	return p.Requested.Sub(p.Shortfall)
}

// CostBase returns the base-currency cost of the covered quantity
func (p *AllocationPlan) CostBase() decimal.Decimal {
	total := decimal.Zero
	for _, part := range p.Parts {
		total = total.Add(part.CostBase())
	}
	return total
}

// HasShortfall returns true when the batches do not cover the request
func (p *AllocationPlan) HasShortfall() bool {
	return p.Shortfall.IsPositive()
}

// PlanFIFO allocates quantity over batches oldest first. It does not mutate
// the batches; parts are numbered 0,1,2,… in allocation order.
func PlanFIFO(batches []*StockBatch, quantity decimal.Decimal) (*AllocationPlan, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", shared.ErrInvalidInput)
	}

	ordered := make([]*StockBatch, 0, len(batches))
	for _, b := range batches {
		if !b.IsExhausted() {
			ordered = append(ordered, b)
		}
	}
	SortFIFO(ordered)

	plan := &AllocationPlan{Requested: quantity}
	remaining := quantity
	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, b.RemainingQuantity)
		plan.Parts = append(plan.Parts, AllocationPart{
			Batch:    b,
			Quantity: take,
			PartN:    len(plan.Parts),
		})
		remaining = remaining.Sub(take)
	}
	plan.Shortfall = remaining
	return plan, nil
}

// Available returns the total remaining quantity of the batches
func Available(batches []*StockBatch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if !b.IsExhausted() {
			total = total.Add(b.RemainingQuantity)
		}
	}
	return total
}

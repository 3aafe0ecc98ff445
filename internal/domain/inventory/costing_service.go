package inventory

import (
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CostingService applies stock operations to an in-memory snapshot of one
// item@warehouse: its balance and its batches. It never touches storage; the
// caller persists the returned records in one atomic unit.
type CostingService struct {
	shortfallPolicy ShortfallCostPolicy
}

// NewCostingService creates a CostingService. An empty policy means last_known.
func NewCostingService(policy ShortfallCostPolicy) *CostingService {
	if policy == "" {
		policy = ShortfallCostLastKnown
	}
	return &CostingService{shortfallPolicy: policy}
}

// ShortfallPolicy returns the configured shortfall cost policy
func (s *CostingService) ShortfallPolicy() ShortfallCostPolicy {
	return s.shortfallPolicy
}

// Receipt is the set of records one inbound operation produces
type Receipt struct {
	Transaction *InventoryTransaction
	Batch       *StockBatch
	Movement    *StockMovement
}

// Receive creates a batch for a positive transaction and applies it to balance
func (s *CostingService) Receive(balance *InventoryBalance, tx *InventoryTransaction, cost UnitCost) (*Receipt, error) {
	if balance == nil || tx == nil {
		return nil, shared.NewDomainError("INVALID_STATE", "balance and transaction are required")
	}
	if !tx.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: receipt quantity must be positive", shared.ErrInvalidInput)
	}

	batch, err := NewStockBatch(balance.Key(), balance.NextBatchSequence(), tx.OccurredAt, tx.Quantity, cost, tx.Source(), tx.ID)
	if err != nil {
		return nil, err
	}
	movement := NewInboundMovement(tx, batch)
	tx.TotalCostBase = movement.LineCostBase

	balance.Apply(movement.Quantity, movement.LineCostBase)
	balance.LastUnitCostBase = batch.UnitCostBase
	balance.AddDomainEvent(NewStockReceivedEvent(balance, tx, batch))

	return &Receipt{Transaction: tx, Batch: batch, Movement: movement}, nil
}

// Consumption is the set of records one outbound operation produces
type Consumption struct {
	Transaction *InventoryTransaction
	Movements   []*StockMovement
	Batches     []*StockBatch // batches whose remaining quantity changed
	CostBase    decimal.Decimal
	Shortfall   decimal.Decimal
}

// Consume allocates a negative transaction over batches oldest first.
// Without AllowNegative an uncovered request fails with *InsufficientStockError
// and neither balance nor batches are modified.
func (s *CostingService) Consume(balance *InventoryBalance, tx *InventoryTransaction, batches []*StockBatch) (*Consumption, error) {
	if balance == nil || tx == nil {
		return nil, shared.NewDomainError("INVALID_STATE", "balance and transaction are required")
	}
	if !tx.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: consumption quantity must be negative on the transaction", shared.ErrInvalidInput)
	}

	quantity := tx.Quantity.Neg()
	plan, err := PlanFIFO(batches, quantity)
	if err != nil {
		return nil, err
	}
	if plan.HasShortfall() && !tx.AllowNegative {
		return nil, &InsufficientStockError{
			ItemID:      balance.ItemID,
			WarehouseID: balance.WarehouseID,
			Requested:   quantity,
			Available:   plan.Allocated(),
		}
	}

	result := &Consumption{Transaction: tx, Shortfall: plan.Shortfall}
	lineCost := decimal.Zero
	for _, part := range plan.Parts {
		if err := part.Batch.Take(part.Quantity); err != nil {
			return nil, err
		}
		m := NewOutboundMovement(tx, part)
		result.Movements = append(result.Movements, m)
		result.Batches = append(result.Batches, part.Batch)
		lineCost = lineCost.Add(m.LineCostBase)
	}

	var shortfall *StockMovement
	if plan.HasShortfall() {
		shortfall = NewShortfallMovement(tx, plan.Shortfall, s.shortfallUnitCost(balance), len(plan.Parts), s.shortfallPolicy)
		result.Movements = append(result.Movements, shortfall)
		lineCost = lineCost.Add(shortfall.LineCostBase)
	}

	tx.TotalCostBase = lineCost
	result.CostBase = lineCost.Neg()
	balance.Apply(tx.Quantity, lineCost)
	balance.AddDomainEvent(NewStockConsumedEvent(balance, tx, quantity, result.CostBase, len(result.Movements)))
	if shortfall != nil {
		balance.AddDomainEvent(NewShortfallRecordedEvent(balance, tx, shortfall))
	}
	return result, nil
}

func (s *CostingService) shortfallUnitCost(balance *InventoryBalance) decimal.Decimal {
	if s.shortfallPolicy == ShortfallCostZero {
		return decimal.Zero
	}
	return balance.LastUnitCostBase
}

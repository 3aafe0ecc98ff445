// Package stockstore is the only code that writes the stock tables:
// stock_batches, stock_movements, inventory_balances and inventory_transactions.
// It lives under the FIFO engine's internal/ directory so that no other
// package can import it.
package stockstore

import (
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaseModel provides common persistence fields for all models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) toDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func (m *BaseModel) fromDomain(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// InventoryTransactionModel is the persistence model for the InventoryTransaction header.
type InventoryTransactionModel struct {
	BaseModel
	IdempotencyKey string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_inventory_transactions_key"`
	Fingerprint    string          `gorm:"type:varchar(64);not null"`
	Direction      string          `gorm:"type:varchar(10);not null"`
	ItemID         string          `gorm:"type:varchar(64);not null;index:idx_inventory_transactions_item,priority:1"`
	WarehouseID    string          `gorm:"type:varchar(64);not null;index:idx_inventory_transactions_item,priority:2"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalCostBase  decimal.Decimal `gorm:"type:decimal(30,10);not null"`
	AllowNegative  bool            `gorm:"not null;default:false"`
	SourceDocType  string          `gorm:"type:varchar(64);not null;index:idx_inventory_transactions_source,priority:1"`
	SourceDocID    string          `gorm:"type:varchar(64);not null;index:idx_inventory_transactions_source,priority:2"`
	SourceLineID   string          `gorm:"type:varchar(64);not null;default:''"`
	OccurredAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryTransactionModel) TableName() string {
	return "inventory_transactions"
}

// ToDomain converts the persistence model to a domain InventoryTransaction.
func (m *InventoryTransactionModel) ToDomain() *inventory.InventoryTransaction {
	return &inventory.InventoryTransaction{
		BaseEntity:     m.toDomain(),
		IdempotencyKey: m.IdempotencyKey,
		Fingerprint:    m.Fingerprint,
		Direction:      inventory.Direction(m.Direction),
		ItemID:         m.ItemID,
		WarehouseID:    m.WarehouseID,
		Quantity:       m.Quantity,
		TotalCostBase:  m.TotalCostBase,
		AllowNegative:  m.AllowNegative,
		SourceDocType:  m.SourceDocType,
		SourceDocID:    m.SourceDocID,
		SourceLineID:   m.SourceLineID,
		OccurredAt:     m.OccurredAt,
	}
}

func transactionModelFromDomain(t *inventory.InventoryTransaction) *InventoryTransactionModel {
	m := &InventoryTransactionModel{
		IdempotencyKey: t.IdempotencyKey,
		Fingerprint:    t.Fingerprint,
		Direction:      string(t.Direction),
		ItemID:         t.ItemID,
		WarehouseID:    t.WarehouseID,
		Quantity:       t.Quantity,
		TotalCostBase:  t.TotalCostBase,
		AllowNegative:  t.AllowNegative,
		SourceDocType:  t.SourceDocType,
		SourceDocID:    t.SourceDocID,
		SourceLineID:   t.SourceLineID,
		OccurredAt:     t.OccurredAt,
	}
	m.fromDomain(t.BaseEntity)
	return m
}

// StockBatchModel is the persistence model for the StockBatch entity.
type StockBatchModel struct {
	BaseModel
	ItemID            string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_stock_batches_sequence,priority:1;index:idx_stock_batches_fifo,priority:1"`
	WarehouseID       string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_stock_batches_sequence,priority:2;index:idx_stock_batches_fifo,priority:2"`
	Sequence          int64           `gorm:"not null;uniqueIndex:uq_stock_batches_sequence,priority:3;index:idx_stock_batches_fifo,priority:4"`
	ReceivedAt        time.Time       `gorm:"not null;index:idx_stock_batches_fifo,priority:3"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	FxRateToBase      decimal.Decimal `gorm:"type:decimal(20,10);not null"`
	UnitCostBase      decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	OriginalQuantity  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	RemainingQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SourceDocType     string          `gorm:"type:varchar(64);not null"`
	SourceDocID       string          `gorm:"type:varchar(64);not null"`
	SourceLineID      string          `gorm:"type:varchar(64);not null;default:''"`
	TransactionID     uuid.UUID       `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (StockBatchModel) TableName() string {
	return "stock_batches"
}

// ToDomain converts the persistence model to a domain StockBatch.
func (m *StockBatchModel) ToDomain() *inventory.StockBatch {
	return &inventory.StockBatch{
		BaseEntity:        m.toDomain(),
		ItemID:            m.ItemID,
		WarehouseID:       m.WarehouseID,
		Sequence:          m.Sequence,
		ReceivedAt:        m.ReceivedAt,
		UnitCost:          m.UnitCost,
		Currency:          m.Currency,
		FxRateToBase:      m.FxRateToBase,
		UnitCostBase:      m.UnitCostBase,
		OriginalQuantity:  m.OriginalQuantity,
		RemainingQuantity: m.RemainingQuantity,
		SourceDocType:     m.SourceDocType,
		SourceDocID:       m.SourceDocID,
		SourceLineID:      m.SourceLineID,
		TransactionID:     m.TransactionID,
	}
}

func batchModelFromDomain(b *inventory.StockBatch) *StockBatchModel {
	m := &StockBatchModel{
		ItemID:            b.ItemID,
		WarehouseID:       b.WarehouseID,
		Sequence:          b.Sequence,
		ReceivedAt:        b.ReceivedAt,
		UnitCost:          b.UnitCost,
		Currency:          b.Currency,
		FxRateToBase:      b.FxRateToBase,
		UnitCostBase:      b.UnitCostBase,
		OriginalQuantity:  b.OriginalQuantity,
		RemainingQuantity: b.RemainingQuantity,
		SourceDocType:     b.SourceDocType,
		SourceDocID:       b.SourceDocID,
		SourceLineID:      b.SourceLineID,
		TransactionID:     b.TransactionID,
	}
	m.fromDomain(b.BaseEntity)
	return m
}

// StockMovementModel is the persistence model for the StockMovement entity.
type StockMovementModel struct {
	BaseModel
	TransactionID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	IdempotencyKey      string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_stock_movements_key"`
	Direction           string          `gorm:"type:varchar(10);not null"`
	ItemID              string          `gorm:"type:varchar(64);not null;index:idx_stock_movements_item,priority:1"`
	WarehouseID         string          `gorm:"type:varchar(64);not null;index:idx_stock_movements_item,priority:2"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BatchID             *uuid.UUID      `gorm:"type:uuid;index"`
	PartN               *int
	UnitCostBase        decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	LineCostBase        decimal.Decimal `gorm:"type:decimal(30,10);not null"`
	SourceDocType       string          `gorm:"type:varchar(64);not null"`
	SourceDocID         string          `gorm:"type:varchar(64);not null"`
	SourceLineID        string          `gorm:"type:varchar(64);not null;default:''"`
	NeedsReconciliation bool            `gorm:"not null;default:false"`
	CostPolicy          string          `gorm:"type:varchar(20);not null;default:''"`
	OccurredAt          time.Time       `gorm:"not null;index:idx_stock_movements_item,priority:3"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() *inventory.StockMovement {
	return &inventory.StockMovement{
		BaseEntity:          m.toDomain(),
		TransactionID:       m.TransactionID,
		IdempotencyKey:      m.IdempotencyKey,
		Direction:           inventory.Direction(m.Direction),
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
		CostPolicy:          inventory.ShortfallCostPolicy(m.CostPolicy),
		OccurredAt:          m.OccurredAt,
	}
}

func movementModelFromDomain(mv *inventory.StockMovement) *StockMovementModel {
	m := &StockMovementModel{
		TransactionID:       mv.TransactionID,
		IdempotencyKey:      mv.IdempotencyKey,
		Direction:           string(mv.Direction),
		ItemID:              mv.ItemID,
		WarehouseID:         mv.WarehouseID,
		Quantity:            mv.Quantity,
		BatchID:             mv.BatchID,
		PartN:               mv.PartN,
		UnitCostBase:        mv.UnitCostBase,
		LineCostBase:        mv.LineCostBase,
		SourceDocType:       mv.SourceDocType,
		SourceDocID:         mv.SourceDocID,
		SourceLineID:        mv.SourceLineID,
		NeedsReconciliation: mv.NeedsReconciliation,
		CostPolicy:          string(mv.CostPolicy),
		OccurredAt:          mv.OccurredAt,
	}
	m.fromDomain(mv.BaseEntity)
	return m
}

// InventoryBalanceModel is the persistence model for the InventoryBalance projection.
type InventoryBalanceModel struct {
	BaseModel
	ItemID            string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_inventory_balances_item,priority:1"`
	WarehouseID       string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_inventory_balances_item,priority:2"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BookValue         decimal.Decimal `gorm:"type:decimal(30,10);not null"`
	LastUnitCostBase  decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	LastBatchSequence int64           `gorm:"not null;default:0"`
	Version           int             `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (InventoryBalanceModel) TableName() string {
	return "inventory_balances"
}

// ToDomain converts the persistence model to a domain InventoryBalance.
func (m *InventoryBalanceModel) ToDomain() *inventory.InventoryBalance {
	b := &inventory.InventoryBalance{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.toDomain(),
			Version:    m.Version,
		},
		ItemID:            m.ItemID,
		WarehouseID:       m.WarehouseID,
		Quantity:          m.Quantity,
		BookValue:         m.BookValue,
		LastUnitCostBase:  m.LastUnitCostBase,
		LastBatchSequence: m.LastBatchSequence,
	}
	return b
}

func balanceModelFromDomain(b *inventory.InventoryBalance) *InventoryBalanceModel {
	m := &InventoryBalanceModel{
		ItemID:            b.ItemID,
		WarehouseID:       b.WarehouseID,
		Quantity:          b.Quantity,
		BookValue:         b.BookValue,
		LastUnitCostBase:  b.LastUnitCostBase,
		LastBatchSequence: b.LastBatchSequence,
		Version:           b.Version,
	}
	m.fromDomain(b.BaseEntity)
	return m
}

// Models returns every model owned by the store, for AutoMigrate in tests and dev setups.
func Models() []any {
	return []any{
		&InventoryTransactionModel{},
		&StockBatchModel{},
		&StockMovementModel{},
		&InventoryBalanceModel{},
	}
}

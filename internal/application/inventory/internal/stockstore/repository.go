package stockstore

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository implements inventory.StockWriteRepository using GORM.
// Row locks are taken with SELECT ... FOR UPDATE; dialects without row
// locking (sqlite) drop the clause and rely on their database-level write lock.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository bound to db, which may be a transaction
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func forUpdate() clause.Locking {
	return clause.Locking{Strength: "UPDATE"}
}

// FindTransactionByKey returns the header stored under key
func (r *Repository) FindTransactionByKey(ctx context.Context, key string) (*inventory.InventoryTransaction, error) {
	var m InventoryTransactionModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		return nil, persistence.TranslateError(err)
	}
	return m.ToDomain(), nil
}

// FindMovementsByTransaction returns the movements of a header in part order
func (r *Repository) FindMovementsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*inventory.StockMovement, error) {
	var models []StockMovementModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("part_n ASC").
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find movements: %w", err)
	}
	return movementsToDomain(models), nil
}

// FindBatchByTransaction returns the batch created by a header
func (r *Repository) FindBatchByTransaction(ctx context.Context, transactionID uuid.UUID) (*inventory.StockBatch, error) {
	var m StockBatchModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&m).Error; err != nil {
		return nil, persistence.TranslateError(err)
	}
	return m.ToDomain(), nil
}

// FindBalance returns the balance of key without locking it
func (r *Repository) FindBalance(ctx context.Context, key inventory.ItemKey) (*inventory.InventoryBalance, error) {
	var m InventoryBalanceModel
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND warehouse_id = ?", key.ItemID, key.WarehouseID).
		First(&m).Error; err != nil {
		return nil, persistence.TranslateError(err)
	}
	return m.ToDomain(), nil
}

// LockBalance loads the balance of key under a row lock, creating it when missing.
// Concurrent creators collapse onto one row through the unique (item, warehouse) index.
func (r *Repository) LockBalance(ctx context.Context, key inventory.ItemKey) (*inventory.InventoryBalance, error) {
	fresh := balanceModelFromDomain(inventory.NewInventoryBalance(key))
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fresh).Error; err != nil {
		return nil, fmt.Errorf("failed to create balance: %w", err)
	}

	var m InventoryBalanceModel
	if err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("item_id = ? AND warehouse_id = ?", key.ItemID, key.WarehouseID).
		First(&m).Error; err != nil {
		return nil, persistence.TranslateError(err)
	}
	return m.ToDomain(), nil
}

// FindBatches returns all batches of key in FIFO order
func (r *Repository) FindBatches(ctx context.Context, key inventory.ItemKey) ([]*inventory.StockBatch, error) {
	var models []StockBatchModel
	if err := r.fifoOrder(r.db.WithContext(ctx)).
		Where("item_id = ? AND warehouse_id = ?", key.ItemID, key.WarehouseID).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find batches: %w", err)
	}
	return batchesToDomain(models), nil
}

// FindOpenBatches returns the non-exhausted batches of key under a row lock
func (r *Repository) FindOpenBatches(ctx context.Context, key inventory.ItemKey) ([]*inventory.StockBatch, error) {
	var models []StockBatchModel
	if err := r.fifoOrder(r.db.WithContext(ctx)).
		Clauses(forUpdate()).
		Where("item_id = ? AND warehouse_id = ? AND remaining_quantity > 0", key.ItemID, key.WarehouseID).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find open batches: %w", err)
	}
	return batchesToDomain(models), nil
}

func (r *Repository) fifoOrder(db *gorm.DB) *gorm.DB {
	return db.Order("received_at ASC").Order("sequence ASC")
}

// ListMovements pages through the movements of key
func (r *Repository) ListMovements(ctx context.Context, key inventory.ItemKey, filter shared.Filter) (shared.Paginated[*inventory.StockMovement], error) {
	filter = filter.Normalized()
	query := r.db.WithContext(ctx).Model(&StockMovementModel{}).
		Where("item_id = ? AND warehouse_id = ?", key.ItemID, key.WarehouseID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[*inventory.StockMovement]{}, fmt.Errorf("failed to count movements: %w", err)
	}

	var models []StockMovementModel
	field := persistence.ValidateSortField(filter.OrderBy, persistence.MovementSortFields, "occurred_at")
	dir := persistence.ValidateSortOrder(filter.OrderDir)
	if field != "occurred_at" {
		query = query.Order(field + " " + dir)
	}
	if err := query.
		Order("occurred_at " + dir).
		Order("created_at " + dir).
		Order("part_n " + dir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&models).Error; err != nil {
		return shared.Paginated[*inventory.StockMovement]{}, fmt.Errorf("failed to list movements: %w", err)
	}
	return shared.NewPaginated(movementsToDomain(models), total, filter.Page, filter.PageSize), nil
}

// CountUnreconciled counts movements of key flagged for reconciliation
func (r *Repository) CountUnreconciled(ctx context.Context, key inventory.ItemKey) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&StockMovementModel{}).
		Where("item_id = ? AND warehouse_id = ? AND needs_reconciliation = ?", key.ItemID, key.WarehouseID, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unreconciled movements: %w", err)
	}
	return count, nil
}

// ListKeys returns every item@warehouse that has a balance
func (r *Repository) ListKeys(ctx context.Context) ([]inventory.ItemKey, error) {
	var rows []struct {
		ItemID      string
		WarehouseID string
	}
	if err := r.db.WithContext(ctx).Model(&InventoryBalanceModel{}).
		Select("item_id, warehouse_id").
		Order("item_id ASC").
		Order("warehouse_id ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list balance keys: %w", err)
	}
	keys := make([]inventory.ItemKey, len(rows))
	for i, row := range rows {
		keys[i] = inventory.ItemKey{ItemID: row.ItemID, WarehouseID: row.WarehouseID}
	}
	return keys, nil
}

// SaveTransaction inserts a header; a key collision yields shared.ErrAlreadyExists
func (r *Repository) SaveTransaction(ctx context.Context, tx *inventory.InventoryTransaction) error {
	if err := r.db.WithContext(ctx).Create(transactionModelFromDomain(tx)).Error; err != nil {
		return persistence.TranslateError(err)
	}
	return nil
}

// SaveMovements inserts movements; a key collision yields shared.ErrAlreadyExists
func (r *Repository) SaveMovements(ctx context.Context, movements []*inventory.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	models := make([]*StockMovementModel, len(movements))
	for i, mv := range movements {
		models[i] = movementModelFromDomain(mv)
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return persistence.TranslateError(err)
	}
	return nil
}

// CreateBatch inserts a new batch
func (r *Repository) CreateBatch(ctx context.Context, batch *inventory.StockBatch) error {
	if err := r.db.WithContext(ctx).Create(batchModelFromDomain(batch)).Error; err != nil {
		return persistence.TranslateError(err)
	}
	return nil
}

// UpdateBatchRemaining writes the remaining quantity of consumed batches
func (r *Repository) UpdateBatchRemaining(ctx context.Context, batches []*inventory.StockBatch) error {
	for _, b := range batches {
		if b.RemainingQuantity.IsNegative() {
			return fmt.Errorf("%w: batch %s would go below zero", shared.ErrInvalidState, b.ID)
		}
		result := r.db.WithContext(ctx).Model(&StockBatchModel{}).
			Where("id = ?", b.ID).
			Updates(map[string]interface{}{
				"remaining_quantity": b.RemainingQuantity,
				"updated_at":         b.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update batch %s: %w", b.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
	}
	return nil
}

// SaveBalance writes the balance with an optimistic version check and bumps its version
func (r *Repository) SaveBalance(ctx context.Context, balance *inventory.InventoryBalance) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&InventoryBalanceModel{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]interface{}{
			"quantity":            balance.Quantity,
			"book_value":          balance.BookValue,
			"last_unit_cost_base": balance.LastUnitCostBase,
			"last_batch_sequence": balance.LastBatchSequence,
			"version":             balance.Version + 1,
			"updated_at":          now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	balance.IncrementVersion()
	balance.Touch(now)
	return nil
}

func movementsToDomain(models []StockMovementModel) []*inventory.StockMovement {
	out := make([]*inventory.StockMovement, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}

func batchesToDomain(models []StockBatchModel) []*inventory.StockBatch {
	out := make([]*inventory.StockBatch, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}

var _ inventory.StockWriteRepository = (*Repository)(nil)

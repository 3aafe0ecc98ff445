package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// StockReadRepository answers read-only questions about stock tables
type StockReadRepository interface {
	// FindBalance returns the balance of key, shared.ErrNotFound if none exists
	FindBalance(ctx context.Context, key ItemKey) (*InventoryBalance, error)
	// FindBatches returns all batches of key, exhausted ones included, in FIFO order
	FindBatches(ctx context.Context, key ItemKey) ([]*StockBatch, error)
	// ListMovements pages through the movements of key, oldest first by default
	ListMovements(ctx context.Context, key ItemKey, filter shared.Filter) (shared.Paginated[*StockMovement], error)
	// CountUnreconciled counts movements of key flagged for reconciliation
	CountUnreconciled(ctx context.Context, key ItemKey) (int64, error)
	// ListKeys returns every item@warehouse that has a balance
	ListKeys(ctx context.Context) ([]ItemKey, error)

	// FindTransactionByKey returns the header stored under key, shared.ErrNotFound if none
	FindTransactionByKey(ctx context.Context, key string) (*InventoryTransaction, error)
	// FindMovementsByTransaction returns the movements of a header in part order
	FindMovementsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*StockMovement, error)
	// FindBatchByTransaction returns the batch created by a header, shared.ErrNotFound if none
	FindBatchByTransaction(ctx context.Context, transactionID uuid.UUID) (*StockBatch, error)
}

// StockWriteRepository mutates stock tables. It is only ever obtained
// inside a transaction scope of the FIFO engine.
type StockWriteRepository interface {
	StockReadRepository

	// LockBalance loads the balance of key under a row lock, creating it when missing
	LockBalance(ctx context.Context, key ItemKey) (*InventoryBalance, error)
	// FindOpenBatches returns the non-exhausted batches of key under a row lock, in FIFO order
	FindOpenBatches(ctx context.Context, key ItemKey) ([]*StockBatch, error)

	SaveTransaction(ctx context.Context, tx *InventoryTransaction) error
	SaveMovements(ctx context.Context, movements []*StockMovement) error
	CreateBatch(ctx context.Context, batch *StockBatch) error
	UpdateBatchRemaining(ctx context.Context, batches []*StockBatch) error
	SaveBalance(ctx context.Context, balance *InventoryBalance) error
}

package inventory

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
)

// TransactionScope provides transactional access to the stock tables.
// All repository operations inside fn share one database transaction and
// are committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repo inventory.StockWriteRepository) error) error
	// Reader returns a repository for queries outside any transaction
	Reader() inventory.StockReadRepository
}

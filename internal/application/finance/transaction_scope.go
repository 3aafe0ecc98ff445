package finance

import (
	"context"

	"github.com/erp/stockledger/internal/domain/finance"
)

// TransactionScope provides transactional access to accounting_entries.
// Everything fn does shares one database transaction.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repo finance.LedgerWriteRepository) error) error
	// Reader returns a repository for queries outside any transaction
	Reader() finance.LedgerReadRepository
}

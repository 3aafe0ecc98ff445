package finance

import "context"

// LedgerReadRepository answers read-only ledger queries
type LedgerReadRepository interface {
	// FindByKey returns the entries stored under a posting key in line order
	FindByKey(ctx context.Context, idempotencyKey string) ([]*AccountingEntry, error)
	// FindByDocument returns the entries of a document in line order
	FindByDocument(ctx context.Context, docType, docID string) ([]*AccountingEntry, error)
	// FindReversalOf returns the entries that reverse a document, if any
	FindReversalOf(ctx context.Context, docType, docID string) ([]*AccountingEntry, error)
	// SumAccount returns the base debit and credit totals of one account
	SumAccount(ctx context.Context, legalEntityID, account string) (AccountBalance, error)
	// SumAccounts returns base totals of every account used by a legal entity
	SumAccounts(ctx context.Context, legalEntityID string) ([]AccountBalance, error)
}

// LedgerWriteRepository appends entries. It is only ever obtained inside a
// transaction scope of the posting gateway.
type LedgerWriteRepository interface {
	LedgerReadRepository
	// LockDocument serializes posting attempts for one key inside the current transaction
	LockDocument(ctx context.Context, idempotencyKey string) error
	// Append inserts all entries; a duplicate (key, line) fails with shared.ErrAlreadyExists
	Append(ctx context.Context, entries []*AccountingEntry) error
}

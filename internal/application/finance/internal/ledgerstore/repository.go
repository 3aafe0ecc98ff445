package ledgerstore

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// sumBatchSize is the number of rows aggregated per round trip
const sumBatchSize = 500

// Repository implements finance.LedgerWriteRepository using GORM
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository bound to db, which may be a transaction
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByKey returns the entries stored under a posting key in line order
func (r *Repository) FindByKey(ctx context.Context, idempotencyKey string) ([]*finance.AccountingEntry, error) {
	var models []AccountingEntryModel
	if err := r.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		Order("line_number ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find entries by key: %w", err)
	}
	return entriesToDomain(models), nil
}

// FindByDocument returns the entries of a document in line order
func (r *Repository) FindByDocument(ctx context.Context, docType, docID string) ([]*finance.AccountingEntry, error) {
	var models []AccountingEntryModel
	if err := r.db.WithContext(ctx).
		Where("doc_type = ? AND doc_id = ?", docType, docID).
		Order("line_number ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find entries by document: %w", err)
	}
	return entriesToDomain(models), nil
}

// FindReversalOf returns the entries reversing a document
func (r *Repository) FindReversalOf(ctx context.Context, docType, docID string) ([]*finance.AccountingEntry, error) {
	var models []AccountingEntryModel
	if err := r.db.WithContext(ctx).
		Where("reverses_doc_type = ? AND reverses_doc_id = ?", docType, docID).
		Order("doc_id ASC").
		Order("line_number ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find reversal entries: %w", err)
	}
	return entriesToDomain(models), nil
}

// SumAccount returns the base totals of one account. Sums are computed in
// decimal on the application side so every dialect gives exact results.
func (r *Repository) SumAccount(ctx context.Context, legalEntityID, account string) (finance.AccountBalance, error) {
	totals, err := r.sum(r.db.WithContext(ctx).
		Where("legal_entity_id = ? AND (debit_account = ? OR credit_account = ?)", legalEntityID, account, account))
	if err != nil {
		return finance.AccountBalance{}, err
	}
	t := totals[account]
	return finance.NewAccountBalance(legalEntityID, account, t.debit, t.credit), nil
}

// SumAccounts returns base totals of every account used by a legal entity
func (r *Repository) SumAccounts(ctx context.Context, legalEntityID string) ([]finance.AccountBalance, error) {
	totals, err := r.sum(r.db.WithContext(ctx).Where("legal_entity_id = ?", legalEntityID))
	if err != nil {
		return nil, err
	}
	out := make([]finance.AccountBalance, 0, len(totals))
	for account, t := range totals {
		out = append(out, finance.NewAccountBalance(legalEntityID, account, t.debit, t.credit))
	}
	return out, nil
}

type sides struct {
	debit, credit decimal.Decimal
}

func (r *Repository) sum(query *gorm.DB) (map[string]sides, error) {
	totals := map[string]sides{}
	add := func(account string, debit bool, amount decimal.Decimal) {
		if account == "" {
			return
		}
		t, ok := totals[account]
		if !ok {
			t = sides{debit: decimal.Zero, credit: decimal.Zero}
		}
		if debit {
			t.debit = t.debit.Add(amount)
		} else {
			t.credit = t.credit.Add(amount)
		}
		totals[account] = t
	}

	var batch []AccountingEntryModel
	result := query.Model(&AccountingEntryModel{}).
		Select("id", "debit_account", "credit_account", "amount_base").
		FindInBatches(&batch, sumBatchSize, func(_ *gorm.DB, _ int) error {
			for _, m := range batch {
				add(m.DebitAccount, true, m.AmountBase)
				add(m.CreditAccount, false, m.AmountBase)
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to sum entries: %w", result.Error)
	}
	return totals, nil
}

// LockDocument takes a transaction-scoped advisory lock on postgres.
// Other dialects serialize writers at the database level already.
func (r *Repository) LockDocument(ctx context.Context, idempotencyKey string) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", idempotencyKey).Error; err != nil {
		return fmt.Errorf("failed to lock document %s: %w", idempotencyKey, err)
	}
	return nil
}

// Append inserts entries. A duplicate (key, line) fails with shared.ErrAlreadyExists.
func (r *Repository) Append(ctx context.Context, entries []*finance.AccountingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]*AccountingEntryModel, len(entries))
	for i, e := range entries {
		models[i] = entryModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return persistence.TranslateError(err)
	}
	return nil
}

var _ finance.LedgerWriteRepository = (*Repository)(nil)

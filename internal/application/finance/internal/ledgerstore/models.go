// Package ledgerstore is the only code that writes accounting_entries.
// It sits under the posting gateway's internal/ directory.
package ledgerstore

import (
	"time"

	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountingEntryModel is the persistence model for AccountingEntry.
// Rows are insert-only; there is no UpdatedAt.
type AccountingEntryModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CreatedAt       time.Time       `gorm:"not null"`
	IdempotencyKey  string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_accounting_entries_key_line,priority:1"`
	LineNumber      int             `gorm:"not null;uniqueIndex:uq_accounting_entries_key_line,priority:2"`
	Fingerprint     string          `gorm:"type:varchar(64);not null"`
	DocType         string          `gorm:"type:varchar(64);not null;index:idx_accounting_entries_doc,priority:1"`
	DocID           string          `gorm:"type:varchar(64);not null;index:idx_accounting_entries_doc,priority:2"`
	PostingDate     time.Time       `gorm:"type:date;not null"`
	DebitAccount    string          `gorm:"type:varchar(32);not null;default:'';index:idx_accounting_entries_debit,priority:2"`
	CreditAccount   string          `gorm:"type:varchar(32);not null;default:'';index:idx_accounting_entries_credit,priority:2"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	FxRateToBase    decimal.Decimal `gorm:"type:decimal(20,10);not null"`
	AmountBase      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BaseCurrency    string          `gorm:"type:varchar(3);not null"`
	LegalEntityID   string          `gorm:"type:varchar(64);not null;index:idx_accounting_entries_debit,priority:1;index:idx_accounting_entries_credit,priority:1"`
	Memo            string          `gorm:"type:varchar(255);not null;default:''"`
	ReversesDocType string          `gorm:"type:varchar(64);not null;default:'';index:idx_accounting_entries_reverses,priority:1"`
	ReversesDocID   string          `gorm:"type:varchar(64);not null;default:'';index:idx_accounting_entries_reverses,priority:2"`
}

// TableName returns the table name for GORM
func (AccountingEntryModel) TableName() string {
	return "accounting_entries"
}

// ToDomain converts the model to a domain entry
func (m *AccountingEntryModel) ToDomain() *finance.AccountingEntry {
	return &finance.AccountingEntry{
		BaseEntity:      shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.CreatedAt},
		IdempotencyKey:  m.IdempotencyKey,
		Fingerprint:     m.Fingerprint,
		DocType:         m.DocType,
		DocID:           m.DocID,
		LineNumber:      m.LineNumber,
		PostingDate:     m.PostingDate,
		DebitAccount:    m.DebitAccount,
		CreditAccount:   m.CreditAccount,
		Amount:          m.Amount,
		Currency:        m.Currency,
		FxRateToBase:    m.FxRateToBase,
		AmountBase:      m.AmountBase,
		BaseCurrency:    m.BaseCurrency,
		LegalEntityID:   m.LegalEntityID,
		Memo:            m.Memo,
		ReversesDocType: m.ReversesDocType,
		ReversesDocID:   m.ReversesDocID,
	}
}

func entryModelFromDomain(e *finance.AccountingEntry) *AccountingEntryModel {
	return &AccountingEntryModel{
		ID:              e.ID,
		CreatedAt:       e.CreatedAt,
		IdempotencyKey:  e.IdempotencyKey,
		LineNumber:      e.LineNumber,
		Fingerprint:     e.Fingerprint,
		DocType:         e.DocType,
		DocID:           e.DocID,
		PostingDate:     e.PostingDate,
		DebitAccount:    e.DebitAccount,
		CreditAccount:   e.CreditAccount,
		Amount:          e.Amount,
		Currency:        e.Currency,
		FxRateToBase:    e.FxRateToBase,
		AmountBase:      e.AmountBase,
		BaseCurrency:    e.BaseCurrency,
		LegalEntityID:   e.LegalEntityID,
		Memo:            e.Memo,
		ReversesDocType: e.ReversesDocType,
		ReversesDocID:   e.ReversesDocID,
	}
}

func entriesToDomain(models []AccountingEntryModel) []*finance.AccountingEntry {
	out := make([]*finance.AccountingEntry, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out
}

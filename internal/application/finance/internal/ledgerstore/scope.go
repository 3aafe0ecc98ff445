package ledgerstore

import (
	"context"

	"github.com/erp/stockledger/internal/domain/finance"
	"gorm.io/gorm"
)

// GormTransactionScope runs ledger writes inside one GORM transaction
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repo finance.LedgerWriteRepository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// Reader returns a repository for queries outside any transaction
func (s *GormTransactionScope) Reader() finance.LedgerReadRepository {
	return NewRepository(s.db)
}

// AutoMigrate creates accounting_entries from the model
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AccountingEntryModel{})
}

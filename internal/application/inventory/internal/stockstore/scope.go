package stockstore

import (
	"context"

	"github.com/erp/stockledger/internal/domain/inventory"
	"gorm.io/gorm"
)

// GormTransactionScope runs stock writes inside one GORM transaction.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repo inventory.StockWriteRepository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// Reader returns a repository for queries outside any transaction
func (s *GormTransactionScope) Reader() inventory.StockReadRepository {
	return NewRepository(s.db)
}

// AutoMigrate creates the stock tables from the models. Production schemas
// come from migrations/; this is for tests and local sqlite databases.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

package ledgerstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewRepository(gormDB), mock, mockDB
}

func buildEntries(t *testing.T, docType, docID, amount string) []*finance.AccountingEntry {
	t.Helper()
	tx, err := finance.PostingTransaction{
		DocType:     docType,
		DocID:       docID,
		PostingDate: day,
		Lines: []finance.PostingLine{
			{DebitAccount: "1300", Amount: decimal.RequireFromString(amount), Currency: "USD", LegalEntityID: "LE1"},
			{CreditAccount: "2100", Amount: decimal.RequireFromString(amount), Currency: "USD", LegalEntityID: "LE1"},
		},
	}.Normalize()
	require.NoError(t, err)
	entries, err := finance.BuildEntries(tx, []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(1)}, valueobject.Currency("USD"), 2)
	require.NoError(t, err)
	return entries
}

func TestRepository_AppendAndFind(t *testing.T) {
	repo := NewRepository(newSQLiteDB(t))
	ctx := context.Background()

	entries := buildEntries(t, "SUPPLY_RECEIPT", "po-1", "12.50")
	require.NoError(t, repo.Append(ctx, entries))

	stored, err := repo.FindByKey(ctx, entries[0].IdempotencyKey)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, entries[0].ID, stored[0].ID)
	assert.Equal(t, 1, stored[0].LineNumber)
	assert.Equal(t, "1300", stored[0].DebitAccount)
	assert.Equal(t, "2100", stored[1].CreditAccount)
	assert.True(t, decimal.RequireFromString("12.5").Equal(stored[1].AmountBase))
	assert.Equal(t, entries[0].Fingerprint, stored[1].Fingerprint)
	assert.True(t, day.Equal(stored[0].PostingDate.UTC()))

	byDoc, err := repo.FindByDocument(ctx, "SUPPLY_RECEIPT", "po-1")
	require.NoError(t, err)
	assert.Len(t, byDoc, 2)

	missing, err := repo.FindByKey(ctx, "acc:v1:SUPPLY_RECEIPT:po-404:POST")
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.NoError(t, repo.Append(ctx, nil))
}

func TestRepository_AppendDuplicateLine(t *testing.T) {
	repo := NewRepository(newSQLiteDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, buildEntries(t, "SUPPLY_RECEIPT", "po-1", "10")))
	err := repo.Append(ctx, buildEntries(t, "SUPPLY_RECEIPT", "po-1", "10"))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestRepository_FindReversalOf(t *testing.T) {
	repo := NewRepository(newSQLiteDB(t))
	ctx := context.Background()

	original := buildEntries(t, "SALE", "so-1", "40")
	require.NoError(t, repo.Append(ctx, original))

	reversal, err := finance.NewReversal(original, "so-1-rev", day)
	require.NoError(t, err)
	reversal, err = reversal.Normalize()
	require.NoError(t, err)
	entries, err := finance.BuildEntries(reversal, []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(1)}, valueobject.Currency("USD"), 2)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, entries))

	found, err := repo.FindReversalOf(ctx, "SALE", "so-1")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "so-1-rev", found[0].DocID)
	assert.Equal(t, "1300", found[0].CreditAccount)
	assert.Equal(t, "2100", found[1].DebitAccount)

	none, err := repo.FindReversalOf(ctx, "SALE", "so-1-rev")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepository_SumAccounts(t *testing.T) {
	repo := NewRepository(newSQLiteDB(t))
	ctx := context.Background()

	// more documents than one aggregation batch holds
	docs := sumBatchSize/2 + 10
	for i := 0; i < docs; i++ {
		require.NoError(t, repo.Append(ctx, buildEntries(t, "SUPPLY_RECEIPT", fmt.Sprintf("po-%d", i), "0.01")))
	}

	inv, err := repo.SumAccount(ctx, "LE1", "1300")
	require.NoError(t, err)
	want := decimal.New(int64(docs), -2)
	assert.True(t, want.Equal(inv.Debit), "debit %s", inv.Debit)
	assert.True(t, inv.Credit.IsZero())
	assert.True(t, want.Equal(inv.Balance))

	all, err := repo.SumAccounts(ctx, "LE1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	tb := finance.NewTrialBalance("LE1", all, decimal.New(1, -2))
	assert.True(t, tb.IsBalanced())
	assert.True(t, want.Equal(tb.TotalCredit))

	other, err := repo.SumAccount(ctx, "LE2", "1300")
	require.NoError(t, err)
	assert.True(t, other.Balance.IsZero())
}

func TestGormTransactionScope_RollsBack(t *testing.T) {
	db := newSQLiteDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := scope.Execute(ctx, func(repo finance.LedgerWriteRepository) error {
		require.NoError(t, repo.LockDocument(ctx, "acc:v1:SALE:so-1:POST"))
		require.NoError(t, repo.Append(ctx, buildEntries(t, "SALE", "so-1", "5")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := scope.Reader().FindByDocument(ctx, "SALE", "so-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRepository_LockDocumentOnPostgres(t *testing.T) {
	repo, mock, mockDB := newMockRepository(t)
	defer mockDB.Close()

	key := "acc:v1:SALE:so-1:POST"
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockDocument(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package finance

import (
	"database/sql"

	"example.com/ledger/internal/domain/finance"
)

func post(db *sql.DB) (*finance.AccountingEntry, error) {
	_, err := db.Exec("insert into accounting_entries (doc_id) values ($1)", "so-1")
	return &finance.AccountingEntry{DocID: "so-1"}, err
}

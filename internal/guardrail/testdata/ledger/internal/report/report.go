package report

import (
	"database/sql"

	inv "example.com/ledger/internal/domain/inventory"
	"example.com/ledger/internal/domain/finance"
)

type gormish interface {
	Table(name string, args ...any) gormish
}

func read(db *sql.DB) error {
	_, err := db.Query(`SELECT quantity FROM inventory_balances WHERE item_id = $1`, "widget")
	return err
}

func summary() finance.TrialBalance {
	return finance.TrialBalance{LegalEntityID: "LE1"}
}

func fixBalance(db *sql.DB) error {
	_, err := db.Exec(`UPDATE inventory_balances
		SET quantity = 0`)
	return err
}

func bookAdjustment(g gormish) (*finance.AccountingEntry, *inv.StockBatch) {
	g.Table("accounting_entries")
	return &finance.AccountingEntry{DocID: "adj-1"}, new(inv.StockBatch)
}

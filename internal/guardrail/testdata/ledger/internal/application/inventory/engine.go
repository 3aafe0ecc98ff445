package inventory

import (
	"database/sql"

	"example.com/ledger/internal/domain/inventory"
)

func receive(db *sql.DB) (*inventory.StockBatch, error) {
	_, err := db.Exec(`INSERT INTO stock_batches (id) VALUES ($1)`, "b1")
	return &inventory.StockBatch{ID: "b1"}, err
}

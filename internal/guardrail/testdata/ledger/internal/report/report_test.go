package report

import "database/sql"

func resetFixture(db *sql.DB) {
	_, _ = db.Exec("DELETE FROM stock_movements")
}

package scratch

import "database/sql"

func wipe(db *sql.DB) {
	_, _ = db.Exec("TRUNCATE accounting_entries")
}

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerTables = []string{
	"inventory_transactions",
	"stock_batches",
	"stock_movements",
	"inventory_balances",
	"accounting_entries",
}

func (tdb *TestDB) tableExists(name string) bool {
	tdb.t.Helper()
	var exists bool
	require.NoError(tdb.t, tdb.DB.Raw(
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = ?)", name,
	).Scan(&exists).Error)
	return exists
}

func TestMigrations_DownAndUp(t *testing.T) {
	tdb := NewTestDB(t)

	for _, table := range ledgerTables {
		assert.True(t, tdb.tableExists(table), table)
	}

	m := tdb.Migrator()
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down())
	for _, table := range ledgerTables {
		assert.False(t, tdb.tableExists(table), table)
	}

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "a second up is a no-op")
	for _, table := range ledgerTables {
		assert.True(t, tdb.tableExists(table), table)
	}

	var triggers int64
	require.NoError(t, tdb.DB.Raw(
		"SELECT count(*) FROM pg_trigger WHERE tgname = 'trg_accounting_entries_append_only'",
	).Scan(&triggers).Error)
	assert.Equal(t, int64(1), triggers)
}

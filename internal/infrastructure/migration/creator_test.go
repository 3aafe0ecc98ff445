package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/stockledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add batch index", "add_batch_index"},
		{"Add-Batch-Index", "add_batch_index"},
		{"ADD_BATCH_INDEX", "add_batch_index"},
		{"add__batch__index", "add_batch_index"},
		{"ledger v2", "ledger_v2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add batch index", "speeds up FIFO scans")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_batch_index.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_batch_index.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- add_batch_index")
	assert.Contains(t, string(up), "-- speeds up FIFO scans")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(down), "-- Rollback of add_batch_index"))

	second, err := CreateMigration(dir, "Drop Memo", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
	up, err = os.ReadFile(second.UpPath)
	require.NoError(t, err)
	assert.NotContains(t, string(up), "\n-- \n")
}

func TestCreateMigration_EmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	require.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		got, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("orders by version and pairs files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{
			"000010_later.up.sql",
			"000002_early.up.sql",
			"000002_early.down.sql",
			"README.md",
			"notes_000003.up.sql",
		} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000004_dir.up.sql"), 0o755))

		got, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []Migration{
			{Version: 2, Name: "early", HasUp: true, HasDown: true},
			{Version: 10, Name: "later", HasUp: true},
		}, got)

		next, err := CreateMigration(dir, "next", "")
		require.NoError(t, err)
		assert.Equal(t, uint(11), next.Version)
	})
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, n := range names {
		m := migrationName.FindStringSubmatch(n)
		require.NotNil(t, m, "unexpected file %s", n)
		if m[3] == "up" {
			ups[m[1]] = true
		} else {
			downs[m[1]] = true
		}
	}
	assert.Equal(t, ups, downs)
}

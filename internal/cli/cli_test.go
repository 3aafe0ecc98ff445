package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erp/stockledger/internal/bootstrap"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const documents = `# opening stock
{"object":"SUPPLY_RECEIPT","action":"POST","payload":{"doc_id":"po-1","legal_entity_id":"LE1","warehouse_id":"wh1","received_at":"2025-02-03T10:00:00Z","lines":[{"item_id":"widget","quantity":"10","unit_cost":"5","currency":"USD"}]}}

{"object":"SALE","action":"POST","payload":{"doc_id":"so-1","legal_entity_id":"LE1","warehouse_id":"wh1","posting_date":"2025-02-04T10:00:00Z","lines":[{"item_id":"widget","quantity":"3","unit_price":"12","currency":"USD"}]}}
`

type cliHarness struct {
	t      *testing.T
	dbPath string
}

func newCLIHarness(t *testing.T) *cliHarness {
	return &cliHarness{t: t, dbPath: filepath.Join(t.TempDir(), "ledger.db")}
}

// execute runs one command against the harness database with a fresh root
func (h *cliHarness) execute(stdin string, args ...string) (string, error) {
	h.t.Helper()
	opts := &RootOptions{runtimeOpts: []bootstrap.Option{bootstrap.WithLogger(zaptest.NewLogger(h.t))}}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--sqlite", h.dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *cliHarness) writeFile(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func decodeData(t *testing.T, out string) any {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func assertDecimal(t *testing.T, want string, got any) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "expected a decimal string, got %v", got)
	assert.True(t, decimal.RequireFromString(want).Equal(decimal.RequireFromString(s)), "want %s, got %s", want, s)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "stockledger", cmd.Use)

	for _, name := range []string{"run", "balance", "entries", "trial-balance", "reconcile", "migrate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	config := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, config)
	assert.Equal(t, "c", config.Shorthand)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.execute("", "--format", "yaml", "balance", "widget", "wh1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_PostsThenReplays(t *testing.T) {
	h := newCLIHarness(t)
	input := h.writeFile("docs.jsonl", documents)

	out, err := h.execute("", "run", input)
	require.NoError(t, err)
	assert.Contains(t, out, "posted 2, replayed 0, rejected 0")
	assert.Contains(t, out, "SALE/POST")

	out, err = h.execute("", "run", input)
	require.NoError(t, err)
	assert.Contains(t, out, "posted 0, replayed 2, rejected 0")

	out, err = h.execute("", "--format", "json", "balance", "widget", "wh1")
	require.NoError(t, err)
	balance := decodeData(t, out).(map[string]any)
	assertDecimal(t, "7", balance["quantity"])
	assertDecimal(t, "35", balance["book_value"])
}

func TestRunCommand_Stdin(t *testing.T) {
	h := newCLIHarness(t)
	out, err := h.execute(documents, "--format", "json", "run")
	require.NoError(t, err)

	report := decodeData(t, out).(map[string]any)
	assert.EqualValues(t, 2, report["posted"])
	docs := report["documents"].([]any)
	require.Len(t, docs, 2)
	first := docs[0].(map[string]any)
	assert.EqualValues(t, 2, first["line"])
	assert.Equal(t, "po-1", first["doc_id"])
}

func TestRunCommand_Rejections(t *testing.T) {
	oversold := `{"object":"SALE","action":"POST","payload":{"doc_id":"so-9","legal_entity_id":"LE1","warehouse_id":"wh1","lines":[{"item_id":"widget","quantity":"50","unit_price":"1","currency":"USD"}]}}`
	input := strings.Join([]string{
		documents,
		`{"object":"SALE","action":`,
		oversold,
		`{"object":"INVOICE","action":"POST","payload":{}}`,
	}, "\n")

	t.Run("stops at the first rejection", func(t *testing.T) {
		h := newCLIHarness(t)
		out, err := h.execute(input, "run")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "posted 2, replayed 0, rejected 1")
	})

	t.Run("keep going reports every line", func(t *testing.T) {
		h := newCLIHarness(t)
		out, err := h.execute(input, "--format", "json", "run", "--keep-going")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		report := decodeData(t, out).(map[string]any)
		assert.EqualValues(t, 2, report["posted"])
		assert.EqualValues(t, 3, report["rejected"])
		docs := report["documents"].([]any)
		var codes []string
		for _, d := range docs {
			if code, ok := d.(map[string]any)["code"]; ok {
				codes = append(codes, code.(string))
			}
		}
		assert.Equal(t, []string{"INTERNAL", "INSUFFICIENT_STOCK", "HANDLER_NOT_REGISTERED"}, codes)
	})

	t.Run("missing file", func(t *testing.T) {
		h := newCLIHarness(t)
		_, err := h.execute("", "run", filepath.Join(t.TempDir(), "absent.jsonl"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestQueryCommands(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.execute(documents, "run")
	require.NoError(t, err)

	t.Run("entries", func(t *testing.T) {
		out, err := h.execute("", "--format", "json", "entries", "SALE", "so-1")
		require.NoError(t, err)
		entries := decodeData(t, out).([]any)
		// revenue and cost of goods sold
		assert.Len(t, entries, 2)
	})

	t.Run("entries of an unknown document", func(t *testing.T) {
		_, err := h.execute("", "entries", "SALE", "so-404")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "NOT_FOUND", ErrorCode(err))
	})

	t.Run("trial balance", func(t *testing.T) {
		out, err := h.execute("", "trial-balance")
		require.NoError(t, err)
		assert.Contains(t, out, "legal entity LE1")
		assert.Contains(t, out, "BALANCED")
		assert.Contains(t, out, "5000")
	})

	t.Run("balance with batches", func(t *testing.T) {
		out, err := h.execute("", "balance", "widget", "wh1", "--batches")
		require.NoError(t, err)
		assert.Contains(t, out, "widget@wh1")
		assert.Contains(t, out, "SEQ")
	})
}

func TestReconcileCommand(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.execute(documents, "run")
	require.NoError(t, err)

	out, err := h.execute("", "reconcile", "widget", "wh1")
	require.NoError(t, err)
	assert.Contains(t, out, "in sync")

	db, err := gorm.Open(sqlite.Open(h.dbPath), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE inventory_balances SET quantity = 99 WHERE item_id = ?", "widget").Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	out, err = h.execute("", "reconcile", "--all")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "drifted")

	out, err = h.execute("", "reconcile", "widget", "wh1", "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "repaired")

	out, err = h.execute("", "--format", "json", "balance", "widget", "wh1")
	require.NoError(t, err)
	assertDecimal(t, "7", decodeData(t, out).(map[string]any)["quantity"])

	_, err = h.execute("", "reconcile", "widget")
	assert.Error(t, err)
}

func TestReconcileCommand_Watch(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.execute(documents, "run")
	require.NoError(t, err)

	out, err := h.execute("", "reconcile", "--watch", "--interval", "10ms", "--max-sweeps", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "checked 1"))
	assert.Contains(t, out, "SUCCESS")

	db, err := gorm.Open(sqlite.Open(h.dbPath), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE inventory_balances SET quantity = 99 WHERE item_id = ?", "widget").Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	out, err = h.execute("", "reconcile", "--watch", "--interval", "10ms", "--max-sweeps", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "drifted 1")

	out, err = h.execute("", "--format", "json", "reconcile", "--watch", "--apply", "--interval", "10ms", "--max-sweeps", "1")
	require.NoError(t, err)
	sweep := decodeData(t, out).(map[string]any)
	assert.Equal(t, float64(1), sweep["drifted"])
	assert.Equal(t, float64(1), sweep["repaired"])

	_, err = h.execute("", "reconcile", "--watch", "widget", "wh1")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	h := newCLIHarness(t)

	t.Run("up creates sqlite tables", func(t *testing.T) {
		out, err := h.execute("", "migrate", "up")
		require.NoError(t, err)
		assert.Contains(t, out, "tables created")
	})

	t.Run("versioned commands need postgres", func(t *testing.T) {
		_, err := h.execute("", "migrate", "version")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("create and list", func(t *testing.T) {
		dir := t.TempDir()
		_, err := h.execute("", "migrate", "--dir", dir, "create", "add item index")
		require.NoError(t, err)
		_, err = h.execute("", "migrate", "--dir", dir, "create", "drop item index")
		require.NoError(t, err)

		out, err := h.execute("", "--format", "json", "migrate", "--dir", dir, "list")
		require.NoError(t, err)
		list := decodeData(t, out).([]any)
		require.Len(t, list, 2)
		assert.Equal(t, "add_item_index", list[0].(map[string]any)["Name"])
	})

	t.Run("invalid step count", func(t *testing.T) {
		_, err := h.execute("", "migrate", "step", "two")
		assert.Error(t, err)
	})
}

func TestNewMigrateRootCommand(t *testing.T) {
	cmd := NewMigrateRootCommand()
	assert.Equal(t, "migrate", cmd.Name())
	assert.NotNil(t, cmd.PersistentFlags().Lookup("sqlite"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("dir"))
}

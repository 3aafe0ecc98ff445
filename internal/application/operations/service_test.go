package operations

import (
	"context"
	"errors"
	"testing"
	"time"

	appfinance "github.com/erp/stockledger/internal/application/finance"
	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/fx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	le1 = "LE1"
	wh  = "wh1"
)

var (
	day0     = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	accounts = AccountMapping{
		Inventory:       "1300",
		AccountsPayable: "2100",
		Receivable:      "1100",
		Revenue:         "4000",
		COGS:            "5000",
		AdjustmentGain:  "4900",
		AdjustmentLoss:  "5900",
	}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type opsFixture struct {
	service *Service
	engine  *appinventory.FIFOEngine
	gateway *appfinance.PostingGateway
	db      *gorm.DB
	today   time.Time
}

func newOpsFixture(t *testing.T) *opsFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, appinventory.AutoMigrate(db))
	require.NoError(t, appfinance.AutoMigrate(db))

	f := &opsFixture{db: db, today: day0}
	logger := zaptest.NewLogger(t)
	locker := cache.NewKeyedMutex()
	converter := fx.NewStaticConverter("USD", map[string]decimal.Decimal{"EUR": dec("1.10")})
	chart := fx.NewStaticChart(accounts.list(), []string{le1})

	f.engine = appinventory.NewFIFOEngine(db, locker, converter, appinventory.EngineConfig{}, logger)
	f.gateway, err = appfinance.NewPostingGateway(db, locker, converter, chart, appfinance.GatewayConfig{
		BaseCurrency: "USD",
		BaseScale:    2,
		Now:          func() time.Time { return f.today },
	}, logger)
	require.NoError(t, err)
	f.service, err = NewService(f.engine, f.gateway, accounts, logger)
	require.NoError(t, err)
	return f
}

func (f *opsFixture) ledgerBalance(t *testing.T, account string) decimal.Decimal {
	t.Helper()
	b, err := f.gateway.AccountBalance(context.Background(), le1, account)
	require.NoError(t, err)
	return b.Balance
}

func (f *opsFixture) stockValue(t *testing.T, item string) (decimal.Decimal, decimal.Decimal) {
	t.Helper()
	b, err := f.engine.GetBalance(context.Background(), item, wh)
	require.NoError(t, err)
	return b.Quantity, b.BookValue
}

func (f *opsFixture) entryCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("accounting_entries").Count(&n).Error)
	return n
}

func supplyReceipt(docID string) SupplyReceiptCommand {
	return SupplyReceiptCommand{
		DocID:         docID,
		LegalEntityID: le1,
		WarehouseID:   wh,
		ReceivedAt:    day0,
		Lines: []SupplyReceiptLine{
			{ItemID: "widget", Quantity: dec("10"), UnitCost: dec("5"), Currency: "USD"},
			{ItemID: "gadget", Quantity: dec("4"), UnitCost: dec("2.5"), Currency: "EUR"},
		},
	}
}

func sale(docID, qty string) SaleCommand {
	return SaleCommand{
		DocID:         docID,
		LegalEntityID: le1,
		WarehouseID:   wh,
		PostingDate:   day0.Add(24 * time.Hour),
		Lines: []SaleLine{
			{ItemID: "widget", Quantity: dec(qty), UnitPrice: dec("12"), Currency: "USD"},
		},
	}
}

func TestService_DocumentLifecycle(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()

	res, err := f.service.ReceiveSupply(ctx, supplyReceipt("po-1"))
	require.NoError(t, err)
	require.Len(t, res.Stock, 2)
	assert.Equal(t, "1", res.Stock[0].LineID)
	assert.Equal(t, "2", res.Stock[1].LineID)
	require.NotNil(t, res.Posting)
	// 10 x 5 USD plus 4 x 2.5 EUR at 1.10
	assert.True(t, dec("61").Equal(f.ledgerBalance(t, accounts.Inventory)))
	assert.True(t, dec("-61").Equal(f.ledgerBalance(t, accounts.AccountsPayable)))

	res, err = f.service.PostSale(ctx, sale("so-1", "7"))
	require.NoError(t, err)
	assert.True(t, dec("35").Equal(res.Stock[0].CostBase))
	assert.True(t, dec("84").Equal(f.ledgerBalance(t, accounts.Receivable)))
	assert.True(t, dec("35").Equal(f.ledgerBalance(t, accounts.COGS)))

	_, err = f.service.PostSaleReturn(ctx, SaleReturnCommand{
		DocID:         "sr-1",
		LegalEntityID: le1,
		WarehouseID:   wh,
		PostingDate:   day0.Add(48 * time.Hour),
		Lines: []SaleReturnLine{
			{ItemID: "widget", Quantity: dec("2"), UnitPrice: dec("12"), Currency: "USD", UnitCost: dec("5")},
		},
	})
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(f.ledgerBalance(t, accounts.Receivable)))
	assert.True(t, dec("25").Equal(f.ledgerBalance(t, accounts.COGS)))

	res, err = f.service.AdjustStock(ctx, StockAdjustmentCommand{
		DocID:         "adj-1",
		LegalEntityID: le1,
		ItemID:        "widget",
		WarehouseID:   wh,
		Quantity:      dec("-1"),
		PostingDate:   day0.Add(72 * time.Hour),
		Reason:        "damaged",
	})
	require.NoError(t, err)
	assert.True(t, dec("-5").Equal(res.Stock[0].CostBase))
	assert.True(t, dec("5").Equal(f.ledgerBalance(t, accounts.AdjustmentLoss)))

	// the ledger inventory account follows the stock valuation
	widgetQty, widgetValue := f.stockValue(t, "widget")
	_, gadgetValue := f.stockValue(t, "gadget")
	assert.True(t, dec("4").Equal(widgetQty))
	assert.True(t, widgetValue.Add(gadgetValue).Equal(f.ledgerBalance(t, accounts.Inventory)))

	tb, err := f.gateway.TrialBalance(ctx, le1)
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced())
}

func TestService_ReplayedDocument(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()

	_, err := f.service.ReceiveSupply(ctx, supplyReceipt("po-1"))
	require.NoError(t, err)
	first, err := f.service.PostSale(ctx, sale("so-1", "3"))
	require.NoError(t, err)
	assert.False(t, first.Replayed())
	rows := f.entryCount(t)

	again, err := f.service.PostSale(ctx, sale("so-1", "3"))
	require.NoError(t, err)
	assert.True(t, again.Replayed())
	assert.Equal(t, rows, f.entryCount(t))
	assert.Equal(t, first.Posting.Entries[0].ID, again.Posting.Entries[0].ID)

	qty, _ := f.stockValue(t, "widget")
	assert.True(t, dec("7").Equal(qty))

	_, err = f.service.PostSale(ctx, sale("so-1", "4"))
	assert.True(t, errors.Is(err, shared.ErrIdempotencyConflict))
}

func TestService_RejectionsLeaveNoTrace(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()
	_, err := f.service.ReceiveSupply(ctx, supplyReceipt("po-1"))
	require.NoError(t, err)
	rows := f.entryCount(t)

	t.Run("insufficient stock", func(t *testing.T) {
		_, err := f.service.PostSale(ctx, sale("so-big", "50"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))
		_, err = f.gateway.GetEntries(ctx, "SALE", "so-big")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("unknown legal entity", func(t *testing.T) {
		cmd := sale("so-le", "1")
		cmd.LegalEntityID = "LE9"
		_, err := f.service.PostSale(ctx, cmd)
		assert.True(t, errors.Is(err, shared.ErrUnknownLegalEntity))
	})

	t.Run("missing legal entity", func(t *testing.T) {
		cmd := supplyReceipt("po-2")
		cmd.LegalEntityID = ""
		_, err := f.service.ReceiveSupply(ctx, cmd)
		assert.True(t, errors.Is(err, shared.ErrMissingLegalEntity))
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := f.service.PostSale(ctx, SaleCommand{DocID: "so-empty", LegalEntityID: le1, WarehouseID: wh})
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("invalid line through the dispatcher", func(t *testing.T) {
		d, err := NewDefaultDispatcher(f.service, nil)
		require.NoError(t, err)
		cmd := sale("so-bad", "2")
		cmd.Lines = append(cmd.Lines, SaleLine{ItemID: "widget", Quantity: dec("-1"), UnitPrice: dec("12")})
		_, err = d.Dispatch(ctx, cmd)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
		assert.Contains(t, err.Error(), "lines[1].quantity")
	})

	t.Run("quantity beyond four places", func(t *testing.T) {
		_, err := f.service.PostSale(ctx, sale("so-fine", "0.00001"))
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	qty, _ := f.stockValue(t, "widget")
	assert.True(t, dec("10").Equal(qty))
	assert.Equal(t, rows, f.entryCount(t))
}

func TestService_NegativeSaleAndReversal(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()
	_, err := f.service.ReceiveSupply(ctx, supplyReceipt("po-1"))
	require.NoError(t, err)

	cmd := sale("so-1", "12")
	cmd.AllowNegative = true
	res, err := f.service.PostSale(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(res.Stock[0].Shortfall))
	// shortfall valued at the last known cost of 5
	assert.True(t, dec("60").Equal(res.Stock[0].CostBase))

	rev, err := f.service.ReverseDocument(ctx, ReversalCommand{
		DocType:       string(ObjectSale),
		DocID:         "so-1",
		ReversalDocID: "so-1-rev",
		PostingDate:   day0.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "so-1-rev", rev.DocID)
	assert.True(t, f.ledgerBalance(t, accounts.Revenue).IsZero())
	assert.True(t, f.ledgerBalance(t, accounts.COGS).IsZero())

	// the physical stock is untouched by a ledger reversal
	qty, _ := f.stockValue(t, "widget")
	assert.True(t, dec("-2").Equal(qty))
}

func TestService_PositiveAdjustmentAtLastKnownCost(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()
	_, err := f.service.ReceiveSupply(ctx, supplyReceipt("po-1"))
	require.NoError(t, err)

	res, err := f.service.AdjustStock(ctx, StockAdjustmentCommand{
		DocID:         "adj-1",
		LegalEntityID: le1,
		ItemID:        "widget",
		WarehouseID:   wh,
		Quantity:      dec("3"),
		PostingDate:   day0,
	})
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(res.Stock[0].CostBase))
	assert.True(t, dec("-15").Equal(f.ledgerBalance(t, accounts.AdjustmentGain)))
}

func TestNewService_RequiresMapping(t *testing.T) {
	m := accounts
	m.COGS = ""
	_, err := NewService(nil, nil, m, nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	assert.Contains(t, err.Error(), "cogs is required")
}

func TestService_UndatedDocumentRetriedNextDay(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()

	receipt := supplyReceipt("po-1")
	receipt.ReceivedAt = time.Time{}
	first, err := f.service.ReceiveSupply(ctx, receipt)
	require.NoError(t, err)
	require.NotNil(t, first.Posting)
	assert.True(t, day0.Truncate(24*time.Hour).Equal(first.Posting.Entries[0].PostingDate))
	rows := f.entryCount(t)

	f.today = day0.Add(24 * time.Hour)
	again, err := f.service.ReceiveSupply(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, again.Replayed())
	assert.Equal(t, rows, f.entryCount(t))
	assert.Equal(t, first.Posting.Entries[0].ID, again.Posting.Entries[0].ID)

	qty, _ := f.stockValue(t, "widget")
	assert.True(t, dec("10").Equal(qty))

	undatedSale := sale("so-1", "3")
	undatedSale.PostingDate = time.Time{}
	_, err = f.service.PostSale(ctx, undatedSale)
	require.NoError(t, err)
	f.today = f.today.Add(24 * time.Hour)
	replay, err := f.service.PostSale(ctx, undatedSale)
	require.NoError(t, err)
	assert.True(t, replay.Replayed())
	assert.True(t, dec("15").Equal(f.ledgerBalance(t, accounts.COGS)))
}

func TestService_CostOfSalesRoundedToStoredScale(t *testing.T) {
	f := newOpsFixture(t)
	ctx := context.Background()

	_, err := f.service.ReceiveSupply(ctx, SupplyReceiptCommand{
		DocID:         "po-1",
		LegalEntityID: le1,
		WarehouseID:   wh,
		ReceivedAt:    day0,
		Lines: []SupplyReceiptLine{
			{ItemID: "widget", Quantity: dec("1"), UnitCost: dec("3.240263"), Currency: "USD"},
			{ItemID: "widget", Quantity: dec("1"), UnitCost: dec("3.240263"), Currency: "USD"},
		},
	})
	require.NoError(t, err)

	first, err := f.service.PostSale(ctx, sale("so-1", "1"))
	require.NoError(t, err)
	assert.True(t, dec("3.240263").Equal(first.Stock[0].CostBase))

	cogs := func(entries []appfinance.EntryResponse) appfinance.EntryResponse {
		for _, e := range entries {
			if e.DebitAccount == accounts.COGS {
				return e
			}
		}
		t.Fatalf("no cost of sales line")
		return appfinance.EntryResponse{}
	}
	posted := cogs(first.Posting.Entries)
	assert.Equal(t, "3.2403", posted.Amount.String())
	assert.True(t, dec("3.24").Equal(posted.AmountBase))

	stored, err := f.gateway.GetEntries(ctx, string(ObjectSale), "so-1")
	require.NoError(t, err)
	assert.True(t, posted.Amount.Equal(cogs(stored).Amount))

	again, err := f.service.PostSale(ctx, sale("so-1", "1"))
	require.NoError(t, err)
	assert.True(t, again.Replayed())
	assert.True(t, posted.Amount.Equal(cogs(again.Posting.Entries).Amount))
}

// Package operations holds the business use cases that drive the FIFO engine
// and the posting gateway for one source document, and the dispatch table
// that routes commands to them.
package operations

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	appfinance "github.com/erp/stockledger/internal/application/finance"
	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockEngine is the part of the FIFO engine the use cases drive
type StockEngine interface {
	Receive(ctx context.Context, req appinventory.ReceiveRequest) (*appinventory.ReceiveResult, error)
	Consume(ctx context.Context, req appinventory.ConsumeRequest) (*appinventory.ConsumeResult, error)
	Adjust(ctx context.Context, req appinventory.AdjustRequest) (*appinventory.AdjustResult, error)
}

// LedgerPoster is the part of the posting gateway the use cases drive
type LedgerPoster interface {
	Post(ctx context.Context, t finance.PostingTransaction) (*appfinance.PostingResult, error)
	Reverse(ctx context.Context, docType, docID, reversalDocID string, postingDate time.Time) (*appfinance.PostingResult, error)
	CheckScope(legalEntityID string, accounts ...string) error
	BaseCurrency() string
}

// AccountMapping names the ledger accounts booked by each use case
type AccountMapping struct {
	Inventory       string `json:"inventory" validate:"required"`
	AccountsPayable string `json:"accounts_payable" validate:"required"`
	Receivable      string `json:"receivable" validate:"required"`
	Revenue         string `json:"revenue" validate:"required"`
	COGS            string `json:"cogs" validate:"required"`
	AdjustmentGain  string `json:"adjustment_gain" validate:"required"`
	AdjustmentLoss  string `json:"adjustment_loss" validate:"required"`
}

func (m AccountMapping) list() []string {
	return []string{m.Inventory, m.AccountsPayable, m.Receivable, m.Revenue, m.COGS, m.AdjustmentGain, m.AdjustmentLoss}
}

// StockOutcome summarizes the stock side of one document line
type StockOutcome struct {
	LineID        string          `json:"line_id"`
	ItemID        string          `json:"item_id"`
	TransactionID string          `json:"transaction_id"`
	CostBase      decimal.Decimal `json:"cost_base"`
	Shortfall     decimal.Decimal `json:"shortfall"`
	Replayed      bool            `json:"replayed"`
}

// Result is returned by every use case. Posting is nil when the document
// produced nothing to book.
type Result struct {
	Route   Route                     `json:"route"`
	DocID   string                    `json:"doc_id"`
	Stock   []StockOutcome            `json:"stock,omitempty"`
	Posting *appfinance.PostingResult `json:"posting,omitempty"`
}

// Replayed returns true when every step had already been applied
func (r *Result) Replayed() bool {
	for _, s := range r.Stock {
		if !s.Replayed {
			return false
		}
	}
	return r.Posting == nil || r.Posting.Replayed
}

// Service runs business documents through the FIFO engine and then the
// posting gateway. Each step is idempotent, so a failed document is retried
// by sending it again unchanged.
type Service struct {
	stock    StockEngine
	ledger   LedgerPoster
	accounts AccountMapping
	logger   *zap.Logger
}

// NewService creates a new operations Service
func NewService(stock StockEngine, ledger LedgerPoster, accounts AccountMapping, logger *zap.Logger) (*Service, error) {
	if err := validateStruct(accounts); err != nil {
		return nil, fmt.Errorf("account mapping: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		stock:    stock,
		ledger:   ledger,
		accounts: accounts,
		logger:   logger.Named("operations"),
	}, nil
}

// ReceiveSupply books received goods into stock and the supplier liability.
// Lines are valued at the rate the engine resolved for the batch.
func (s *Service) ReceiveSupply(ctx context.Context, cmd SupplyReceiptCommand) (*Result, error) {
	if err := s.checkDocument(cmd, cmd.LegalEntityID); err != nil {
		return nil, err
	}
	result := &Result{Route: cmd.Route(), DocID: cmd.DocID}
	tx := s.transaction(ObjectSupplyReceipt, cmd.DocID, cmd.ReceivedAt)

	for i, line := range cmd.Lines {
		lineID := lineIDOf(line.LineID, i)
		res, err := s.stock.Receive(ctx, appinventory.ReceiveRequest{
			ItemID:      line.ItemID,
			WarehouseID: cmd.WarehouseID,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
			Currency:    line.Currency,
			Source:      source(ObjectSupplyReceipt, cmd.DocID, lineID),
			ReceivedAt:  cmd.ReceivedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", lineID, err)
		}
		result.Stock = append(result.Stock, StockOutcome{
			LineID:        lineID,
			ItemID:        line.ItemID,
			TransactionID: res.TransactionID.String(),
			CostBase:      res.CostBase,
			Shortfall:     decimal.Zero,
			Replayed:      res.Replayed,
		})

		amount := lineAmount(line.Quantity.Mul(line.UnitCost))
		if !amount.IsPositive() {
			continue
		}
		tx.Lines = append(tx.Lines, finance.PostingLine{
			DebitAccount:  s.accounts.Inventory,
			CreditAccount: s.accounts.AccountsPayable,
			Amount:        amount,
			Currency:      res.Batch.Currency,
			FxRateToBase:  res.Batch.FxRateToBase,
			LegalEntityID: cmd.LegalEntityID,
			Memo:          "receipt " + line.ItemID,
		})
	}
	return s.post(ctx, result, tx)
}

// PostSale takes sold goods out of stock oldest batch first, then books
// revenue and the cost of goods the engine computed.
func (s *Service) PostSale(ctx context.Context, cmd SaleCommand) (*Result, error) {
	if err := s.checkDocument(cmd, cmd.LegalEntityID); err != nil {
		return nil, err
	}
	result := &Result{Route: cmd.Route(), DocID: cmd.DocID}
	tx := s.transaction(ObjectSale, cmd.DocID, cmd.PostingDate)
	base := s.ledger.BaseCurrency()

	for i, line := range cmd.Lines {
		lineID := lineIDOf(line.LineID, i)
		res, err := s.stock.Consume(ctx, appinventory.ConsumeRequest{
			ItemID:        line.ItemID,
			WarehouseID:   cmd.WarehouseID,
			Quantity:      line.Quantity,
			Source:        source(ObjectSale, cmd.DocID, lineID),
			AllowNegative: cmd.AllowNegative,
			OccurredAt:    cmd.PostingDate,
		})
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", lineID, err)
		}
		result.Stock = append(result.Stock, StockOutcome{
			LineID:        lineID,
			ItemID:        line.ItemID,
			TransactionID: res.TransactionID.String(),
			CostBase:      res.CostBase,
			Shortfall:     res.Shortfall,
			Replayed:      res.Replayed,
		})
		if res.Shortfall.IsPositive() {
			s.logger.Warn("sale shipped beyond stock",
				zap.String("doc_id", cmd.DocID),
				zap.String("item_id", line.ItemID),
				zap.String("shortfall", res.Shortfall.String()))
		}

		if revenue := lineAmount(line.Quantity.Mul(line.UnitPrice)); revenue.IsPositive() {
			tx.Lines = append(tx.Lines, finance.PostingLine{
				DebitAccount:  s.accounts.Receivable,
				CreditAccount: s.accounts.Revenue,
				Amount:        revenue,
				Currency:      line.Currency,
				LegalEntityID: cmd.LegalEntityID,
				Memo:          "sale " + line.ItemID,
			})
		}
		if cost := lineAmount(res.CostBase); cost.IsPositive() {
			tx.Lines = append(tx.Lines, finance.PostingLine{
				DebitAccount:  s.accounts.COGS,
				CreditAccount: s.accounts.Inventory,
				Amount:        cost,
				Currency:      base,
				LegalEntityID: cmd.LegalEntityID,
				Memo:          "cost of goods " + line.ItemID,
			})
		}
	}
	return s.post(ctx, result, tx)
}

// PostSaleReturn brings returned goods back into stock and reverses the
// revenue and cost of goods of the returned quantity.
func (s *Service) PostSaleReturn(ctx context.Context, cmd SaleReturnCommand) (*Result, error) {
	if err := s.checkDocument(cmd, cmd.LegalEntityID); err != nil {
		return nil, err
	}
	result := &Result{Route: cmd.Route(), DocID: cmd.DocID}
	tx := s.transaction(ObjectSaleReturn, cmd.DocID, cmd.PostingDate)
	base := s.ledger.BaseCurrency()

	for i, line := range cmd.Lines {
		lineID := lineIDOf(line.LineID, i)
		costCurrency := line.CostCurrency
		if costCurrency == "" {
			costCurrency = base
		}
		res, err := s.stock.Receive(ctx, appinventory.ReceiveRequest{
			ItemID:      line.ItemID,
			WarehouseID: cmd.WarehouseID,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
			Currency:    costCurrency,
			Source:      source(ObjectSaleReturn, cmd.DocID, lineID),
			ReceivedAt:  cmd.PostingDate,
		})
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", lineID, err)
		}
		result.Stock = append(result.Stock, StockOutcome{
			LineID:        lineID,
			ItemID:        line.ItemID,
			TransactionID: res.TransactionID.String(),
			CostBase:      res.CostBase,
			Shortfall:     decimal.Zero,
			Replayed:      res.Replayed,
		})

		if refund := lineAmount(line.Quantity.Mul(line.UnitPrice)); refund.IsPositive() {
			tx.Lines = append(tx.Lines, finance.PostingLine{
				DebitAccount:  s.accounts.Revenue,
				CreditAccount: s.accounts.Receivable,
				Amount:        refund,
				Currency:      line.Currency,
				LegalEntityID: cmd.LegalEntityID,
				Memo:          "return " + line.ItemID,
			})
		}
		if cost := lineAmount(res.CostBase); cost.IsPositive() {
			tx.Lines = append(tx.Lines, finance.PostingLine{
				DebitAccount:  s.accounts.Inventory,
				CreditAccount: s.accounts.COGS,
				Amount:        cost,
				Currency:      base,
				LegalEntityID: cmd.LegalEntityID,
				Memo:          "returned cost " + line.ItemID,
			})
		}
	}
	return s.post(ctx, result, tx)
}

// AdjustStock applies a stock count correction and books the value change
// against the adjustment gain or loss account.
func (s *Service) AdjustStock(ctx context.Context, cmd StockAdjustmentCommand) (*Result, error) {
	if err := s.checkDocument(cmd, cmd.LegalEntityID); err != nil {
		return nil, err
	}
	result := &Result{Route: cmd.Route(), DocID: cmd.DocID}
	tx := s.transaction(ObjectStockAdjustment, cmd.DocID, cmd.PostingDate)

	lineID := lineIDOf(cmd.LineID, 0)
	res, err := s.stock.Adjust(ctx, appinventory.AdjustRequest{
		ItemID:      cmd.ItemID,
		WarehouseID: cmd.WarehouseID,
		Quantity:    cmd.Quantity,
		UnitCost:    cmd.UnitCost,
		Currency:    cmd.Currency,
		Source:      source(ObjectStockAdjustment, cmd.DocID, lineID),
		OccurredAt:  cmd.PostingDate,
	})
	if err != nil {
		return nil, err
	}
	result.Stock = append(result.Stock, StockOutcome{
		LineID:        lineID,
		ItemID:        cmd.ItemID,
		TransactionID: res.TransactionID.String(),
		CostBase:      res.CostBase,
		Shortfall:     decimal.Zero,
		Replayed:      res.Replayed,
	})

	line := finance.PostingLine{
		Amount:        lineAmount(res.CostBase.Abs()),
		Currency:      s.ledger.BaseCurrency(),
		LegalEntityID: cmd.LegalEntityID,
		Memo:          strings.TrimSpace("adjustment " + cmd.ItemID + " " + cmd.Reason),
	}
	switch {
	case line.Amount.IsZero():
		return result, nil
	case res.CostBase.IsPositive():
		line.DebitAccount, line.CreditAccount = s.accounts.Inventory, s.accounts.AdjustmentGain
	case res.CostBase.IsNegative():
		line.DebitAccount, line.CreditAccount = s.accounts.AdjustmentLoss, s.accounts.Inventory
	default:
		return result, nil
	}
	tx.Lines = append(tx.Lines, line)
	return s.post(ctx, result, tx)
}

// ReverseDocument reverses the ledger entries of a posted document. Stock is
// not touched; physical corrections go through a stock adjustment.
func (s *Service) ReverseDocument(ctx context.Context, cmd ReversalCommand) (*Result, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, err
	}
	posting, err := s.ledger.Reverse(ctx, cmd.DocType, cmd.DocID, cmd.ReversalDocID, cmd.PostingDate)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reversed document",
		zap.String("doc_type", cmd.DocType),
		zap.String("doc_id", cmd.DocID),
		zap.String("reversal_doc_id", cmd.ReversalDocID),
		zap.Bool("replayed", posting.Replayed))
	return &Result{Route: cmd.Route(), DocID: cmd.ReversalDocID, Posting: posting}, nil
}

// transaction starts the posting of a document. A zero date is left for the
// gateway to fill in so that it stays out of the payload fingerprint.
func (s *Service) transaction(object ObjectCode, docID string, on time.Time) finance.PostingTransaction {
	return finance.PostingTransaction{DocType: string(object), DocID: docID, PostingDate: on}
}

// post books the collected lines. Stock steps already done stay done; the
// document is completed by sending it again.
func (s *Service) post(ctx context.Context, result *Result, tx finance.PostingTransaction) (*Result, error) {
	if len(tx.Lines) == 0 {
		return result, nil
	}
	posting, err := s.ledger.Post(ctx, tx)
	if err != nil {
		s.logger.Error("stock applied but posting failed",
			zap.String("doc_type", tx.DocType),
			zap.String("doc_id", tx.DocID),
			zap.Error(err))
		return nil, err
	}
	result.Posting = posting
	s.logger.Info("document processed",
		zap.String("route", result.Route.String()),
		zap.String("doc_id", result.DocID),
		zap.Bool("replayed", result.Replayed()))
	return result, nil
}

// checkDocument rejects a document the ledger would refuse before any stock moves
func (s *Service) checkDocument(cmd Command, legalEntityID string) error {
	if err := validateStruct(cmd); err != nil {
		return err
	}
	return s.ledger.CheckScope(legalEntityID, s.accounts.list()...)
}

// lineAmount rounds a computed amount to the stored scale, so the first
// posting and every replay return the same figures
func lineAmount(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(finance.AmountScale)
}

func lineIDOf(id string, index int) string {
	if id != "" {
		return id
	}
	return strconv.Itoa(index + 1)
}

func source(object ObjectCode, docID, lineID string) inventory.SourceDocument {
	return inventory.SourceDocument{DocType: string(object), DocID: docID, LineID: lineID}
}

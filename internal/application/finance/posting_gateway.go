package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/application/finance/internal/ledgerstore"
	"github.com/erp/stockledger/internal/domain/finance"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultLockTimeout bounds how long a posting waits for its document
const DefaultLockTimeout = 5 * time.Second

// GatewayConfig holds PostingGateway settings
type GatewayConfig struct {
	BaseCurrency string
	BaseScale    int32 // minor units of the base currency
	// Epsilon is the largest tolerated |debit - credit| in base currency.
	// Zero means one minor unit.
	Epsilon     decimal.Decimal
	LockTimeout time.Duration
	// Now dates postings sent without a posting date. Nil means time.Now.
	Now         func() time.Time
}

// PostingGateway is the single writer of accounting entries. A document is
// posted at most once; a retry with the same payload returns the stored
// entries and a different payload under the same document fails.
type PostingGateway struct {
	scope       TransactionScope
	locker      shared.KeyedLocker
	converter   shared.CurrencyConverter
	chart       finance.ChartOfAccounts
	publisher   shared.EventPublisher
	logger      *zap.Logger
	base        valueobject.Currency
	scale       int32
	epsilon     decimal.Decimal
	lockTimeout time.Duration
	now         func() time.Time
}

// NewPostingGateway creates a PostingGateway writing through db
func NewPostingGateway(
	db *gorm.DB,
	locker shared.KeyedLocker,
	converter shared.CurrencyConverter,
	chart finance.ChartOfAccounts,
	cfg GatewayConfig,
	logger *zap.Logger,
) (*PostingGateway, error) {
	return newPostingGateway(ledgerstore.NewGormTransactionScope(db), locker, converter, chart, cfg, logger)
}

func newPostingGateway(
	scope TransactionScope,
	locker shared.KeyedLocker,
	converter shared.CurrencyConverter,
	chart finance.ChartOfAccounts,
	cfg GatewayConfig,
	logger *zap.Logger,
) (*PostingGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCode := cfg.BaseCurrency
	if baseCode == "" && converter != nil {
		baseCode = converter.BaseCurrency()
	}
	base, err := valueobject.ParseCurrency(baseCode)
	if err != nil {
		return nil, fmt.Errorf("%w: base currency: %v", shared.ErrInvalidInput, err)
	}
	if converter != nil && converter.BaseCurrency() != base.String() {
		return nil, fmt.Errorf("%w: converter base %s differs from ledger base %s",
			shared.ErrInvalidInput, converter.BaseCurrency(), base)
	}
	scale := cfg.BaseScale
	if scale < 0 || scale > finance.AmountScale {
		return nil, fmt.Errorf("%w: base scale must be between 0 and %d", shared.ErrInvalidInput, finance.AmountScale)
	}
	epsilon := cfg.Epsilon
	if epsilon.IsZero() {
		epsilon = decimal.New(1, -scale)
	}
	if epsilon.IsNegative() {
		return nil, fmt.Errorf("%w: epsilon cannot be negative", shared.ErrInvalidInput)
	}
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PostingGateway{
		scope:       scope,
		locker:      locker,
		converter:   converter,
		chart:       chart,
		publisher:   shared.NopEventPublisher{},
		logger:      logger.Named("posting_gateway"),
		base:        base,
		scale:       scale,
		epsilon:     epsilon,
		lockTimeout: timeout,
		now:         now,
	}, nil
}

// AutoMigrate creates accounting_entries on db. Production databases are
// migrated from migrations/ instead.
func AutoMigrate(db *gorm.DB) error {
	return ledgerstore.AutoMigrate(db)
}

// SetEventPublisher sets the publisher that receives events after commit
func (g *PostingGateway) SetEventPublisher(publisher shared.EventPublisher) {
	if publisher == nil {
		publisher = shared.NopEventPublisher{}
	}
	g.publisher = publisher
}

// BaseCurrency returns the reporting currency of the ledger
func (g *PostingGateway) BaseCurrency() string {
	return g.base.String()
}

// Post writes all lines of a transaction or none. An unbalanced transaction
// fails with *finance.UnbalancedPostingError before anything is written.
func (g *PostingGateway) Post(ctx context.Context, t finance.PostingTransaction) (*PostingResult, error) {
	return g.post(ctx, t)
}

// Reverse posts the equal and opposite entries of a posted document under
// reversalDocID. A document is reversed at most once.
func (g *PostingGateway) Reverse(ctx context.Context, docType, docID, reversalDocID string, postingDate time.Time) (*PostingResult, error) {
	original := finance.PostingTransaction{DocType: docType, DocID: docID}
	unlock, err := shared.AcquireLock(ctx, g.locker, original.LockKey(), g.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	reader := g.scope.Reader()
	entries, err := reader.FindByDocument(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries for %s/%s", shared.ErrNotFound, docType, docID)
	}

	prior, err := reader.FindReversalOf(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	if len(prior) > 0 && prior[0].DocID != reversalDocID {
		return nil, fmt.Errorf("%w: %s/%s already reversed by %s",
			shared.ErrInvalidState, docType, docID, prior[0].DocID)
	}

	reversal, err := finance.NewReversal(entries, reversalDocID, postingDate)
	if err != nil {
		return nil, err
	}
	return g.post(ctx, reversal)
}

// GetEntries returns the entries of a document in line order
func (g *PostingGateway) GetEntries(ctx context.Context, docType, docID string) ([]EntryResponse, error) {
	entries, err := g.scope.Reader().FindByDocument(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries for %s/%s", shared.ErrNotFound, docType, docID)
	}
	return ToEntryResponses(entries), nil
}

// AccountBalance returns base totals of one account
func (g *PostingGateway) AccountBalance(ctx context.Context, legalEntityID, account string) (finance.AccountBalance, error) {
	if err := g.checkLegalEntity(legalEntityID); err != nil {
		return finance.AccountBalance{}, err
	}
	if g.chart != nil && !g.chart.HasAccount(account) {
		return finance.AccountBalance{}, fmt.Errorf("%w: %s", shared.ErrUnknownAccount, account)
	}
	return g.scope.Reader().SumAccount(ctx, legalEntityID, account)
}

// TrialBalance sums every account of a legal entity
func (g *PostingGateway) TrialBalance(ctx context.Context, legalEntityID string) (*finance.TrialBalance, error) {
	if err := g.checkLegalEntity(legalEntityID); err != nil {
		return nil, err
	}
	accounts, err := g.scope.Reader().SumAccounts(ctx, legalEntityID)
	if err != nil {
		return nil, err
	}
	tb := finance.NewTrialBalance(legalEntityID, accounts, g.epsilon)
	if !tb.IsBalanced() {
		g.logger.Error("trial balance does not balance",
			zap.String("legal_entity_id", legalEntityID),
			zap.String("total_debit", tb.TotalDebit.String()),
			zap.String("total_credit", tb.TotalCredit.String()))
	}
	return tb, nil
}

// CheckScope fails when the legal entity or any account is unknown to the chart
func (g *PostingGateway) CheckScope(legalEntityID string, accounts ...string) error {
	if err := g.checkLegalEntity(legalEntityID); err != nil {
		return err
	}
	if g.chart == nil {
		return nil
	}
	for _, acc := range accounts {
		if !g.chart.HasAccount(acc) {
			return fmt.Errorf("%w: %s", shared.ErrUnknownAccount, acc)
		}
	}
	return nil
}

func (g *PostingGateway) checkLegalEntity(legalEntityID string) error {
	if legalEntityID == "" {
		return shared.ErrMissingLegalEntity
	}
	if g.chart != nil && !g.chart.HasLegalEntity(legalEntityID) {
		return fmt.Errorf("%w: %s", shared.ErrUnknownLegalEntity, legalEntityID)
	}
	return nil
}

// post writes one transaction exactly once:
//  1. stored entries under the posting key short-circuit to a replay
//  2. conversion rates are resolved and the balance is checked before any lock
//  3. under the keyed lock and inside one transaction the key is checked
//     again and all entries are appended
//  4. the posted event is published after commit
func (g *PostingGateway) post(ctx context.Context, t finance.PostingTransaction) (*PostingResult, error) {
	t, err := t.WithDefaultDate(g.now()).Normalize()
	if err != nil {
		return nil, err
	}
	if err := t.Validate(g.chart); err != nil {
		return nil, err
	}
	key := t.IdempotencyKey()
	fingerprint := t.Fingerprint()
	log := g.logger.With(zap.String("key", key))

	if stored, err := g.replay(ctx, g.scope.Reader(), key, fingerprint); err != nil {
		return nil, err
	} else if stored != nil {
		log.Info("replayed existing posting")
		return newPostingResult(stored, true), nil
	}

	rates, err := g.resolveRates(ctx, t)
	if err != nil {
		return nil, err
	}
	entries, err := finance.BuildEntries(t, rates, g.base, g.scale)
	if err != nil {
		return nil, err
	}
	if err := finance.CheckBalance(t.DocType, t.DocID, entries, g.epsilon); err != nil {
		var unbalanced *finance.UnbalancedPostingError
		if errors.As(err, &unbalanced) {
			log.Warn("rejected unbalanced posting",
				zap.String("debit_total", unbalanced.DebitTotal.String()),
				zap.String("credit_total", unbalanced.CreditTotal.String()),
				zap.String("difference", unbalanced.Difference().String()))
		}
		return nil, err
	}

	unlock, err := shared.AcquireLock(ctx, g.locker, t.LockKey(), g.lockTimeout)
	if err != nil {
		log.Warn("failed to acquire posting lock", zap.Error(err))
		return nil, err
	}

	var stored []*finance.AccountingEntry
	err = g.scope.Execute(ctx, func(repo finance.LedgerWriteRepository) error {
		if err := repo.LockDocument(ctx, key); err != nil {
			return err
		}
		prior, err := g.replay(ctx, repo, key, fingerprint)
		if err != nil {
			return err
		}
		if prior != nil {
			stored = prior
			return nil
		}
		return repo.Append(ctx, entries)
	})
	unlock()

	if errors.Is(err, shared.ErrAlreadyExists) {
		// another writer committed the same key first
		prior, rerr := g.replay(ctx, g.scope.Reader(), key, fingerprint)
		switch {
		case rerr != nil:
			err = rerr
		case prior != nil:
			stored, err = prior, nil
		}
	}
	if err != nil {
		return nil, err
	}

	if stored != nil {
		log.Info("replayed existing posting")
		return newPostingResult(stored, true), nil
	}

	log.Info("posted entries",
		zap.String("doc_type", t.DocType),
		zap.String("doc_id", t.DocID),
		zap.Int("lines", len(entries)))
	if err := g.publisher.Publish(ctx, finance.NewEntriesPostedEvent(entries)); err != nil {
		log.Error("failed to publish posting event", zap.Error(err))
	}
	return newPostingResult(entries, false), nil
}

// replay returns the stored entries of a key, or nil when nothing is stored.
// Stored entries with another fingerprint are an *shared.IdempotencyConflictError.
func (g *PostingGateway) replay(ctx context.Context, repo finance.LedgerReadRepository, key, fingerprint string) ([]*finance.AccountingEntry, error) {
	stored, err := repo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	if err := finance.CheckReplay(stored, fingerprint); err != nil {
		g.logger.Error("idempotency key reused with a different payload",
			zap.String("key", key),
			zap.String("stored_fingerprint", stored[0].Fingerprint),
			zap.String("incoming_fingerprint", fingerprint))
		return nil, err
	}
	return stored, nil
}

// resolveRates returns the base conversion rate of every line. Supplied
// rates win; missing ones come from the converter.
func (g *PostingGateway) resolveRates(ctx context.Context, t finance.PostingTransaction) ([]decimal.Decimal, error) {
	rates := make([]decimal.Decimal, len(t.Lines))
	cache := map[string]decimal.Decimal{}
	for i, l := range t.Lines {
		currency, err := valueobject.ParseCurrency(l.Currency)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", shared.ErrInvalidInput, l.LineNumber, err)
		}
		switch {
		case currency == g.base:
			rates[i] = decimal.NewFromInt(1)
		case l.FxRateToBase.IsPositive():
			rates[i] = l.FxRateToBase.Round(valueobject.RateScale)
		default:
			if r, ok := cache[currency.String()]; ok {
				rates[i] = r
				continue
			}
			if g.converter == nil {
				return nil, fmt.Errorf("%w: line %d: %s", shared.ErrRateUnavailable, l.LineNumber, currency)
			}
			r, err := g.converter.RateToBase(ctx, currency.String(), t.PostingDate)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s rate for line %d: %w", currency, l.LineNumber, err)
			}
			r = r.Round(valueobject.RateScale)
			cache[currency.String()] = r
			rates[i] = r
		}
	}
	return rates, nil
}

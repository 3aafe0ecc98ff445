package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/application/inventory/internal/stockstore"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultLockTimeout bounds how long an operation waits for its item@warehouse
const DefaultLockTimeout = 5 * time.Second

// EngineConfig holds FIFOEngine settings
type EngineConfig struct {
	ShortfallPolicy inventory.ShortfallCostPolicy
	LockTimeout     time.Duration
}

// FIFOEngine is the single writer of batches, movements, balances and
// inventory transaction headers. Operations on one item@warehouse are
// serialized by the keyed locker and a row lock on the balance; different
// keys run in parallel.
type FIFOEngine struct {
	scope       TransactionScope
	locker      shared.KeyedLocker
	converter   shared.CurrencyConverter
	costing     *inventory.CostingService
	publisher   shared.EventPublisher
	logger      *zap.Logger
	lockTimeout time.Duration
}

// NewFIFOEngine creates a FIFOEngine writing through db
func NewFIFOEngine(
	db *gorm.DB,
	locker shared.KeyedLocker,
	converter shared.CurrencyConverter,
	cfg EngineConfig,
	logger *zap.Logger,
) *FIFOEngine {
	return newFIFOEngine(stockstore.NewGormTransactionScope(db), locker, converter, cfg, logger)
}

func newFIFOEngine(
	scope TransactionScope,
	locker shared.KeyedLocker,
	converter shared.CurrencyConverter,
	cfg EngineConfig,
	logger *zap.Logger,
) *FIFOEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &FIFOEngine{
		scope:       scope,
		locker:      locker,
		converter:   converter,
		costing:     inventory.NewCostingService(cfg.ShortfallPolicy),
		publisher:   shared.NopEventPublisher{},
		logger:      logger.Named("fifo_engine"),
		lockTimeout: timeout,
	}
}

// AutoMigrate creates the stock tables on db. Production databases are
// migrated from migrations/ instead.
func AutoMigrate(db *gorm.DB) error {
	return stockstore.AutoMigrate(db)
}

// SetEventPublisher sets the publisher that receives events after commit
func (e *FIFOEngine) SetEventPublisher(publisher shared.EventPublisher) {
	if publisher == nil {
		publisher = shared.NopEventPublisher{}
	}
	e.publisher = publisher
}

// Receive creates a batch holding the received quantity and one IN movement.
// Repeating a receive for the same source document returns the stored result.
func (e *FIFOEngine) Receive(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: receive quantity must be positive", shared.ErrInvalidInput)
	}
	currency, err := parseCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	tx, err := inventory.NewInventoryTransaction(inventory.TransactionRequest{
		Key:        inventory.ItemKey{ItemID: req.ItemID, WarehouseID: req.WarehouseID},
		Direction:  inventory.DirectionIn,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Currency:   currency.String(),
		Source:     req.Source,
		OccurredAt: req.ReceivedAt,
	})
	if err != nil {
		return nil, err
	}

	var cost inventory.UnitCost
	prepare := func(ctx context.Context) error {
		resolved, err := e.resolveCost(ctx, req.UnitCost, currency, tx.OccurredAt)
		cost = resolved
		return err
	}
	out, err := e.execute(ctx, tx, prepare, e.applyReceipt(tx, &cost))
	if err != nil {
		return nil, err
	}
	return out.receiveResult()
}

// Consume takes quantity from the oldest batches first. Without AllowNegative
// an uncovered request fails with *inventory.InsufficientStockError and
// nothing is written.
func (e *FIFOEngine) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: consume quantity must be positive", shared.ErrInvalidInput)
	}
	tx, err := inventory.NewInventoryTransaction(inventory.TransactionRequest{
		Key:           inventory.ItemKey{ItemID: req.ItemID, WarehouseID: req.WarehouseID},
		Direction:     inventory.DirectionOut,
		Quantity:      req.Quantity.Neg(),
		AllowNegative: req.AllowNegative,
		Source:        req.Source,
		OccurredAt:    req.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	out, err := e.execute(ctx, tx, nil, e.applyConsumption(tx))
	if err != nil {
		return nil, err
	}
	return &ConsumeResult{
		TransactionID: out.tx.ID,
		Movements:     ToMovementResponses(out.movements),
		CostBase:      out.tx.TotalCostBase.Neg(),
		Shortfall:     out.shortfall,
		Replayed:      out.replayed,
	}, nil
}

// Adjust applies a signed corrective quantity. Positive adjustments receive a
// batch; negative ones consume with negative stock allowed.
func (e *FIFOEngine) Adjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	if req.Quantity.IsZero() {
		return nil, fmt.Errorf("%w: adjustment quantity must not be zero", shared.ErrInvalidInput)
	}
	txReq := inventory.TransactionRequest{
		Key:        inventory.ItemKey{ItemID: req.ItemID, WarehouseID: req.WarehouseID},
		Direction:  inventory.DirectionAdjust,
		Quantity:   req.Quantity,
		Source:     req.Source,
		OccurredAt: req.OccurredAt,
	}

	var (
		currency valueobject.Currency
		err      error
	)
	if req.Quantity.IsPositive() && req.UnitCost != nil {
		if currency, err = parseCurrency(req.Currency); err != nil {
			return nil, err
		}
		txReq.UnitCost = *req.UnitCost
		txReq.Currency = currency.String()
	}
	txReq.AllowNegative = req.Quantity.IsNegative()

	tx, err := inventory.NewInventoryTransaction(txReq)
	if err != nil {
		return nil, err
	}

	var out *outcome
	if req.Quantity.IsNegative() {
		out, err = e.execute(ctx, tx, nil, e.applyConsumption(tx))
	} else {
		var cost *inventory.UnitCost
		var prepare func(context.Context) error
		if req.UnitCost != nil {
			cost = &inventory.UnitCost{}
			prepare = func(ctx context.Context) error {
				resolved, err := e.resolveCost(ctx, *req.UnitCost, currency, tx.OccurredAt)
				*cost = resolved
				return err
			}
		}
		out, err = e.execute(ctx, tx, prepare, e.applyReceipt(tx, cost))
	}
	if err != nil {
		return nil, err
	}

	result := &AdjustResult{
		TransactionID: out.tx.ID,
		Movements:     ToMovementResponses(out.movements),
		CostBase:      out.tx.TotalCostBase,
		Replayed:      out.replayed,
	}
	if out.batch != nil {
		b := ToBatchResponse(out.batch)
		result.Batch = &b
	}
	return result, nil
}

// GetBalance returns quantity and book value of an item@warehouse.
// A key that never held stock reports zero.
func (e *FIFOEngine) GetBalance(ctx context.Context, itemID, warehouseID string) (*BalanceResponse, error) {
	key := inventory.ItemKey{ItemID: itemID, WarehouseID: warehouseID}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	balance, err := e.scope.Reader().FindBalance(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		balance = inventory.NewInventoryBalance(key)
	} else if err != nil {
		return nil, err
	}
	resp := ToBalanceResponse(balance.View())
	return &resp, nil
}

// ListMovements returns a page of movements of an item@warehouse and the total count
func (e *FIFOEngine) ListMovements(ctx context.Context, itemID, warehouseID string, filter MovementListFilter) ([]MovementResponse, int64, error) {
	key := inventory.ItemKey{ItemID: itemID, WarehouseID: warehouseID}
	if err := key.Validate(); err != nil {
		return nil, 0, err
	}
	page, err := e.scope.Reader().ListMovements(ctx, key, shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
	})
	if err != nil {
		return nil, 0, err
	}
	return ToMovementResponses(page.Items), page.Total, nil
}

// ListBatches returns every batch of an item@warehouse in FIFO order
func (e *FIFOEngine) ListBatches(ctx context.Context, itemID, warehouseID string) ([]BatchResponse, error) {
	key := inventory.ItemKey{ItemID: itemID, WarehouseID: warehouseID}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	batches, err := e.scope.Reader().FindBatches(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]BatchResponse, len(batches))
	for i, b := range batches {
		out[i] = ToBatchResponse(b)
	}
	return out, nil
}

// outcome is what one stock operation produced or, on replay, what it had produced
type outcome struct {
	tx        *inventory.InventoryTransaction
	batch     *inventory.StockBatch
	movements []*inventory.StockMovement
	shortfall decimal.Decimal
	replayed  bool
}

func (o *outcome) receiveResult() (*ReceiveResult, error) {
	if o.batch == nil || len(o.movements) == 0 {
		return nil, fmt.Errorf("%w: receipt %s has no batch or movement", shared.ErrInvalidState, o.tx.IdempotencyKey)
	}
	return &ReceiveResult{
		TransactionID: o.tx.ID,
		Batch:         ToBatchResponse(o.batch),
		Movement:      ToMovementResponse(o.movements[0]),
		CostBase:      o.tx.TotalCostBase,
		Replayed:      o.replayed,
	}, nil
}

type applyFunc func(ctx context.Context, repo inventory.StockWriteRepository, balance *inventory.InventoryBalance) (*outcome, error)

// execute runs one stock operation exactly once:
//  1. a stored header under the transaction key short-circuits to a replay
//  2. prepare runs (rate lookups) before any lock is held
//  3. under the keyed lock and inside one transaction the header is checked
//     again, the balance row is locked and apply writes the records
//  4. events are published after commit
func (e *FIFOEngine) execute(ctx context.Context, tx *inventory.InventoryTransaction, prepare func(context.Context) error, apply applyFunc) (*outcome, error) {
	log := e.logger.With(
		zap.String("key", tx.IdempotencyKey),
		zap.String("item_id", tx.ItemID),
		zap.String("warehouse_id", tx.WarehouseID),
	)

	if out, err := e.replay(ctx, e.scope.Reader(), tx); err == nil {
		log.Info("replayed existing inventory transaction")
		return out, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			return nil, err
		}
	}

	unlock, err := shared.AcquireLock(ctx, e.locker, tx.Key().LockKey(), e.lockTimeout)
	if err != nil {
		log.Warn("failed to acquire stock lock", zap.Error(err))
		return nil, err
	}

	var (
		out     *outcome
		balance *inventory.InventoryBalance
	)
	err = e.scope.Execute(ctx, func(repo inventory.StockWriteRepository) error {
		prior, err := e.replay(ctx, repo, tx)
		if err == nil {
			out = prior
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		balance, err = repo.LockBalance(ctx, tx.Key())
		if err != nil {
			return err
		}
		out, err = apply(ctx, repo, balance)
		if err != nil {
			return err
		}
		return repo.SaveBalance(ctx, balance)
	})
	unlock()

	if errors.Is(err, shared.ErrAlreadyExists) {
		// another writer committed the same key first
		if prior, rerr := e.replay(ctx, e.scope.Reader(), tx); rerr == nil {
			out, err = prior, nil
		} else if !errors.Is(rerr, shared.ErrNotFound) {
			err = rerr
		}
	}
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		if errors.As(err, &insufficient) {
			log.Info("insufficient stock",
				zap.String("requested", insufficient.Requested.String()),
				zap.String("available", insufficient.Available.String()))
		}
		return nil, err
	}

	if out.replayed {
		log.Info("replayed existing inventory transaction")
		return out, nil
	}
	if out.shortfall.IsPositive() {
		log.Warn("stock consumed beyond batches",
			zap.String("shortfall", out.shortfall.String()),
			zap.String("cost_policy", string(e.costing.ShortfallPolicy())))
	}
	e.publishDomainEvents(ctx, balance)
	return out, nil
}

// replay loads what a stored header produced. shared.ErrNotFound means the
// operation has not been applied; a stored header with another fingerprint
// is an *shared.IdempotencyConflictError.
func (e *FIFOEngine) replay(ctx context.Context, repo inventory.StockReadRepository, tx *inventory.InventoryTransaction) (*outcome, error) {
	stored, err := repo.FindTransactionByKey(ctx, tx.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if err := stored.CheckReplay(tx.Fingerprint); err != nil {
		e.logger.Error("idempotency key reused with a different payload",
			zap.String("key", tx.IdempotencyKey),
			zap.String("stored_fingerprint", stored.Fingerprint),
			zap.String("incoming_fingerprint", tx.Fingerprint))
		return nil, err
	}

	movements, err := repo.FindMovementsByTransaction(ctx, stored.ID)
	if err != nil {
		return nil, err
	}
	out := &outcome{tx: stored, movements: movements, shortfall: decimal.Zero, replayed: true}
	if stored.Quantity.IsPositive() {
		batch, err := repo.FindBatchByTransaction(ctx, stored.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: receipt %s has no batch", shared.ErrInvalidState, stored.IdempotencyKey)
		}
		out.batch = batch
	}
	for _, m := range movements {
		if m.IsShortfall() {
			out.shortfall = out.shortfall.Sub(m.Quantity)
		}
	}
	return out, nil
}

// applyReceipt writes a receipt. A nil cost values it at the balance's last known base unit cost.
func (e *FIFOEngine) applyReceipt(tx *inventory.InventoryTransaction, cost *inventory.UnitCost) applyFunc {
	return func(ctx context.Context, repo inventory.StockWriteRepository, balance *inventory.InventoryBalance) (*outcome, error) {
		c := e.lastKnownCost(balance)
		if cost != nil {
			c = *cost
		}
		receipt, err := e.costing.Receive(balance, tx, c)
		if err != nil {
			return nil, err
		}
		if err := repo.SaveTransaction(ctx, receipt.Transaction); err != nil {
			return nil, err
		}
		if err := repo.CreateBatch(ctx, receipt.Batch); err != nil {
			return nil, err
		}
		if err := repo.SaveMovements(ctx, []*inventory.StockMovement{receipt.Movement}); err != nil {
			return nil, err
		}
		return &outcome{
			tx:        receipt.Transaction,
			batch:     receipt.Batch,
			movements: []*inventory.StockMovement{receipt.Movement},
			shortfall: decimal.Zero,
		}, nil
	}
}

func (e *FIFOEngine) applyConsumption(tx *inventory.InventoryTransaction) applyFunc {
	return func(ctx context.Context, repo inventory.StockWriteRepository, balance *inventory.InventoryBalance) (*outcome, error) {
		batches, err := repo.FindOpenBatches(ctx, tx.Key())
		if err != nil {
			return nil, err
		}
		consumption, err := e.costing.Consume(balance, tx, batches)
		if err != nil {
			return nil, err
		}
		if err := repo.SaveTransaction(ctx, consumption.Transaction); err != nil {
			return nil, err
		}
		if err := repo.UpdateBatchRemaining(ctx, consumption.Batches); err != nil {
			return nil, err
		}
		if err := repo.SaveMovements(ctx, consumption.Movements); err != nil {
			return nil, err
		}
		return &outcome{
			tx:        consumption.Transaction,
			movements: consumption.Movements,
			shortfall: consumption.Shortfall,
		}, nil
	}
}

func (e *FIFOEngine) lastKnownCost(balance *inventory.InventoryBalance) inventory.UnitCost {
	return inventory.UnitCost{
		Amount:       balance.LastUnitCostBase,
		Currency:     e.converter.BaseCurrency(),
		FxRateToBase: decimal.NewFromInt(1),
		AmountBase:   balance.LastUnitCostBase,
	}
}

// resolveCost converts a unit cost into base currency. It may call the
// conversion collaborator and so must run before the stock lock is taken.
func (e *FIFOEngine) resolveCost(ctx context.Context, amount decimal.Decimal, currency valueobject.Currency, on time.Time) (inventory.UnitCost, error) {
	if amount.IsNegative() {
		return inventory.UnitCost{}, fmt.Errorf("%w: unit cost cannot be negative", shared.ErrInvalidInput)
	}
	base := valueobject.Currency(e.converter.BaseCurrency())
	rate := decimal.NewFromInt(1)
	if currency != base {
		r, err := e.converter.RateToBase(ctx, currency.String(), on)
		if err != nil {
			return inventory.UnitCost{}, fmt.Errorf("failed to resolve %s rate: %w", currency, err)
		}
		rate = r.Round(valueobject.RateScale)
	}
	money, err := valueobject.NewMoney(amount, currency)
	if err != nil {
		return inventory.UnitCost{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	converted, err := money.ConvertTo(base, rate, inventory.UnitCostScale)
	if err != nil {
		return inventory.UnitCost{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return inventory.UnitCost{
		Amount:       amount,
		Currency:     currency.String(),
		FxRateToBase: rate,
		AmountBase:   converted.Amount(),
	}, nil
}

func parseCurrency(code string) (valueobject.Currency, error) {
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return c, nil
}

// publishDomainEvents publishes the events collected on balance. Delivery
// failures are logged; the stock change is already committed.
func (e *FIFOEngine) publishDomainEvents(ctx context.Context, balance *inventory.InventoryBalance) {
	if balance == nil {
		return
	}
	events := balance.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		e.logger.Warn("failed to publish stock events", zap.Error(err), zap.Int("count", len(events)))
	}
	balance.ClearDomainEvents()
}

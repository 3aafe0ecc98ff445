// Package bootstrap assembles the costing engine, the posting gateway and
// their infrastructure from configuration. Every command-line entry point
// builds one Runtime and closes it on exit.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appfinance "github.com/erp/stockledger/internal/application/finance"
	appinventory "github.com/erp/stockledger/internal/application/inventory"
	"github.com/erp/stockledger/internal/application/operations"
	"github.com/erp/stockledger/internal/domain/inventory"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/fx"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Runtime holds the wired components
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Database   *persistence.Database
	Engine     *appinventory.FIFOEngine
	Gateway    *appfinance.PostingGateway
	Service    *operations.Service
	Dispatcher *operations.Dispatcher
	Bus        *event.InMemoryEventBus
	Metrics    *telemetry.LedgerMetrics

	closers []func(context.Context) error
}

type options struct {
	logger      *zap.Logger
	database    *persistence.Database
	autoMigrate bool
}

// Option customizes New
type Option func(*options)

// WithLogger uses l instead of building a logger from cfg.Log
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDatabase uses an already opened database; the Runtime does not close it
func WithDatabase(db *persistence.Database) Option {
	return func(o *options) { o.database = db }
}

// WithAutoMigrate creates the tables with GORM instead of relying on the
// versioned migrations. Meant for sqlite and tests.
func WithAutoMigrate(enabled bool) Option {
	return func(o *options) { o.autoMigrate = enabled }
}

// New wires a Runtime. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := &options{autoMigrate: cfg.Database.Driver == "sqlite"}
	for _, opt := range opts {
		opt(o)
	}

	rt := &Runtime{Config: cfg}
	ready := false
	defer func() {
		if !ready {
			_ = rt.Close(context.Background())
		}
	}()

	tel := cfg.Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tel.Enabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		SamplingRatio:     tel.SamplingRatio,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(tracerProvider.Shutdown)

	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tel.Enabled && tel.LogsEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(logProvider.Shutdown)

	rt.Logger = o.logger
	if rt.Logger == nil {
		rt.Logger, err = logger.New(&logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, logProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		rt.onClose(func(context.Context) error {
			_ = rt.Logger.Sync()
			return nil
		})
	}
	log := rt.Logger

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tel.Enabled && tel.MetricsEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		ExportInterval:    tel.MetricsInterval,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.onClose(meterProvider.Shutdown)

	rt.Database = o.database
	if rt.Database == nil {
		rt.Database, err = persistence.NewDatabase(&cfg.Database,
			persistence.WithSlowThreshold(tel.DBSlowQueryThresh),
			persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return rt.Database.Close() })
	}
	if err := telemetry.RegisterDBTracing(rt.Database.DB, telemetry.DBTracingConfig{
		Enabled:         tel.Enabled && tel.DBTraceEnabled,
		LogFullSQL:      tel.DBLogFullSQL,
		SlowQueryThresh: tel.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
		TracerProvider:  tracerProvider.Provider(),
	}, log); err != nil {
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}
	if o.autoMigrate {
		if err := errors.Join(
			appinventory.AutoMigrate(rt.Database.DB),
			appfinance.AutoMigrate(rt.Database.DB),
		); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	factory := cache.NewFactory(cfg.Redis, cfg.Lock, cache.WithLogger(log))
	rt.onClose(func(context.Context) error { return factory.Close() })
	locker, err := factory.CreateLocker(ctx)
	if err != nil {
		return nil, err
	}

	converter, err := newConverter(cfg, log)
	if err != nil {
		return nil, err
	}
	chart := fx.NewStaticChart(cfg.Accounts.Chart, cfg.Accounts.LegalEntities)

	policy, err := inventory.ParseShortfallCostPolicy(cfg.Ledger.ShortfallCostPolicy)
	if err != nil {
		return nil, err
	}
	rt.Engine = appinventory.NewFIFOEngine(rt.Database.DB, locker, converter, appinventory.EngineConfig{
		ShortfallPolicy: policy,
		LockTimeout:     cfg.Lock.Timeout,
	}, log)
	rt.Gateway, err = appfinance.NewPostingGateway(rt.Database.DB, locker, converter, chart, appfinance.GatewayConfig{
		BaseCurrency: cfg.Ledger.BaseCurrency,
		BaseScale:    cfg.Ledger.BaseScale,
		Epsilon:      cfg.Ledger.Epsilon(),
		LockTimeout:  cfg.Lock.Timeout,
	}, log)
	if err != nil {
		return nil, err
	}

	rt.Metrics, err = telemetry.NewLedgerMetrics(meterProvider.Meter("stockledger/ledger"), log)
	if err != nil {
		return nil, err
	}
	shortfalls := appinventory.NewShortfallHandler(log).
		WithReconciler(rt.Engine).
		WithNotifier(appinventory.NewLoggingShortfallNotifier(log))
	if err := rt.startEventBus(ctx, factory, rt.Metrics, shortfalls); err != nil {
		return nil, err
	}

	m := cfg.Accounts.Mapping
	rt.Service, err = operations.NewService(rt.Engine, rt.Gateway, operations.AccountMapping{
		Inventory:       m.Inventory,
		AccountsPayable: m.AccountsPayable,
		Receivable:      m.Receivable,
		Revenue:         m.Revenue,
		COGS:            m.COGS,
		AdjustmentGain:  m.AdjustmentGain,
		AdjustmentLoss:  m.AdjustmentLoss,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.Dispatcher, err = operations.NewDefaultDispatcher(rt.Service, log)
	if err != nil {
		return nil, err
	}

	log.Info("runtime ready",
		zap.String("env", cfg.App.Env),
		zap.String("database", cfg.Database.Driver),
		zap.String("lock_backend", cfg.Lock.Backend),
		zap.String("base_currency", cfg.Ledger.BaseCurrency),
		zap.Bool("event_dedup", cfg.Event.DedupEnabled),
	)
	ready = true
	return rt, nil
}

func newConverter(cfg *config.Config, log *zap.Logger) (shared.CurrencyConverter, error) {
	static, err := fx.NewStaticConverterFromStrings(cfg.Ledger.BaseCurrency, cfg.FX.Rates)
	if err != nil {
		return nil, err
	}
	return fx.NewBreakerConverter(static, fx.BreakerConfig{
		Name:             "fx",
		MaxRequests:      cfg.FX.BreakerMaxRequests,
		Interval:         cfg.FX.BreakerInterval,
		Timeout:          cfg.FX.BreakerTimeout,
		FailureThreshold: cfg.FX.BreakerFailureThreshold,
	}, log), nil
}

// startEventBus subscribes the handlers, deduplicated by event id when
// event.dedup_enabled is set, and wires the bus into both engines
func (rt *Runtime) startEventBus(ctx context.Context, factory *cache.Factory, handlers ...shared.EventHandler) error {
	rt.Bus = event.NewInMemoryEventBus(rt.Logger)

	var marks shared.IdempotencyStore
	if rt.Config.Event.DedupEnabled {
		var err error
		if marks, err = factory.CreateIdempotencyStore(ctx); err != nil {
			return err
		}
	}
	for _, h := range handlers {
		if marks != nil {
			h = event.NewIdempotentHandler(h, marks, rt.Logger, event.WithIdempotencyConfig(shared.IdempotencyConfig{
				TTL:     rt.Config.Event.IdempotencyTTL,
				Enabled: true,
			}))
		}
		rt.Bus.Subscribe(h)
	}
	if err := rt.Bus.Start(ctx); err != nil {
		return err
	}
	rt.onClose(rt.Bus.Stop)

	rt.Engine.SetEventPublisher(rt.Bus)
	rt.Gateway.SetEventPublisher(rt.Bus)
	return nil
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases everything in reverse order of acquisition
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}

package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "telemetry:query_start"

// DBTracingConfig holds database tracing configuration
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // keep bound variables in span statements; never in production
	SlowQueryThresh time.Duration // default 200ms
	DBName          string
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// RegisterDBTracing installs otelgorm on db plus a slow-statement callback
// that tags the statement's span and logs a warning
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("database tracing disabled")
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	w := &slowStatementWatch{threshold: cfg.SlowQueryThresh, logger: logger.Named("db_tracing")}
	cb := db.Callback()
	if err := errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:start_create", w.start),
		cb.Query().Before("gorm:query").Register("telemetry:start_query", w.start),
		cb.Update().Before("gorm:update").Register("telemetry:start_update", w.start),
		cb.Delete().Before("gorm:delete").Register("telemetry:start_delete", w.start),
		cb.Row().Before("gorm:row").Register("telemetry:start_row", w.start),
		cb.Raw().Before("gorm:raw").Register("telemetry:start_raw", w.start),
		cb.Create().After("gorm:create").Register("telemetry:finish_create", w.finish),
		cb.Query().After("gorm:query").Register("telemetry:finish_query", w.finish),
		cb.Update().After("gorm:update").Register("telemetry:finish_update", w.finish),
		cb.Delete().After("gorm:delete").Register("telemetry:finish_delete", w.finish),
		cb.Row().After("gorm:row").Register("telemetry:finish_row", w.finish),
		cb.Raw().After("gorm:raw").Register("telemetry:finish_raw", w.finish),
	); err != nil {
		return err
	}

	logger.Info("database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type slowStatementWatch struct {
	threshold time.Duration
	logger    *zap.Logger
}

func (w *slowStatementWatch) start(db *gorm.DB) {
	db.InstanceSet(queryStartKey, time.Now())
}

func (w *slowStatementWatch) finish(db *gorm.DB) {
	v, ok := db.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	started, ok := v.(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(started)
	if elapsed <= w.threshold {
		return
	}

	w.logger.Warn("slow statement",
		zap.String("table", db.Statement.Table),
		zap.Duration("elapsed", elapsed),
		zap.Duration("threshold", w.threshold),
	)
	if db.Statement.Context == nil {
		return
	}
	if span := trace.SpanFromContext(db.Statement.Context); span.IsRecording() {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", w.threshold.Milliseconds()),
		))
	}
}

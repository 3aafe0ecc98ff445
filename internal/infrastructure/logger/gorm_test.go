package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func sqlOf(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)
	changed, ok := gl.LogMode(gormlogger.Warn).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, changed.logLevel)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "info %d", 1)
	gl.Warn(ctx, "warn %d", 2)
	gl.Error(ctx, "error %d", 3)

	require.Equal(t, 2, recorded.Len())
	assert.Equal(t, "warn 2", recorded.All()[0].Message)
	assert.Equal(t, "error 3", recorded.All()[1].Message)
}

func TestGormLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		begin   time.Time
		err     error
		want    string
		wantLvl zapcore.Level
	}{
		{name: "error", level: gormlogger.Error, begin: time.Now(), err: errors.New("boom"), want: "sql error", wantLvl: zapcore.ErrorLevel},
		{name: "not found ignored", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{name: "not found logged", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound,
			opts: []GormLoggerOption{WithIgnoreRecordNotFoundError(false)}, want: "sql error", wantLvl: zapcore.ErrorLevel},
		{name: "slow", level: gormlogger.Warn, begin: time.Now().Add(-time.Second),
			opts: []GormLoggerOption{WithSlowThreshold(10 * time.Millisecond)}, want: "slow sql", wantLvl: zapcore.WarnLevel},
		{name: "query at info", level: gormlogger.Info, begin: time.Now(), want: "sql query", wantLvl: zapcore.DebugLevel},
		{name: "query below info", level: gormlogger.Warn, begin: time.Now()},
		{name: "silent", level: gormlogger.Silent, begin: time.Now(), err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(tt.level, tt.opts...)
			gl.Trace(context.Background(), tt.begin, sqlOf("SELECT 1", 1), tt.err)
			if tt.want == "" {
				assert.Equal(t, 0, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			assert.Equal(t, tt.want, recorded.All()[0].Message)
			assert.Equal(t, tt.wantLvl, recorded.All()[0].Level)
		})
	}
}

func TestGormLogger_TraceCarriesDocument(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Info)
	ctx, _ := WithDocument(context.Background(), zap.NewNop(), "SUPPLY_RECEIPT", "po-7")

	gl.Trace(ctx, time.Now(), sqlOf(`INSERT INTO "stock_batches"`, 1), nil)

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "SUPPLY_RECEIPT", fields["doc_type"])
	assert.Equal(t, "po-7", fields["doc_id"])
	assert.Equal(t, int64(1), fields["rows"])
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}

var _ gormlogger.Interface = (*GormLogger)(nil)

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	core := lp.ZapCore(zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLevelFilterCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: inner, min: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))

	for _, lvl := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
		entry := zapcore.Entry{Level: lvl, Message: lvl.String()}
		if ce := core.Check(entry, nil); ce != nil {
			ce.Write()
		}
	}
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "warn", logs.All()[0].Message)

	with := core.With([]zapcore.Field{{Key: "doc_id", Type: zapcore.StringType, String: "so-1"}})
	ce := with.Check(zapcore.Entry{Level: zapcore.ErrorLevel, Message: "posted"}, nil)
	require.NotNil(t, ce)
	ce.Write()
	last := logs.All()[logs.Len()-1]
	assert.Equal(t, "so-1", last.ContextMap()["doc_id"])
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext(t *testing.T) {
	l := zap.NewExample()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()))
	fallback := zap.NewExample()
	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.Same(t, l, FromContextOr(ctx, fallback))
}

func TestWithDocument(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx, l := WithDocument(spanContext(t), zap.New(core), "SALE", "so-1")

	l.Info("posted entries")
	FromContext(ctx).Info("from context")

	require.Equal(t, 2, recorded.Len())
	for _, entry := range recorded.All() {
		fields := entry.ContextMap()
		assert.Equal(t, "SALE", fields["doc_type"])
		assert.Equal(t, "so-1", fields["doc_id"])
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	}

	doc, ok := DocumentFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, Document{Type: "SALE", ID: "so-1"}, doc)

	_, ok = DocumentFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	WithTraceContext(context.Background(), zap.New(core)).Info("no span")
	require.Equal(t, 1, recorded.Len())
	assert.NotContains(t, recorded.All()[0].ContextMap(), "trace_id")

	assert.NotNil(t, WithTraceContext(context.Background(), nil))
}

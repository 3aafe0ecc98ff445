package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey   contextKey = "logger"
	documentKey contextKey = "document"
)

// Document identifies the business document a call is working on
type Document struct {
	Type string
	ID   string
}

// WithContext returns a copy of ctx carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr returns the logger stored in ctx, or fallback
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return zap.NewNop()
}

// WithDocument records the document in ctx and returns a logger tagged with
// it and with the current trace, also stored in ctx
func WithDocument(ctx context.Context, logger *zap.Logger, docType, docID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, documentKey, Document{Type: docType, ID: docID})
	l := WithTraceContext(ctx, logger).With(
		zap.String("doc_type", docType),
		zap.String("doc_id", docID),
	)
	return WithContext(ctx, l), l
}

// DocumentFromContext returns the document recorded by WithDocument
func DocumentFromContext(ctx context.Context) (Document, bool) {
	d, ok := ctx.Value(documentKey).(Document)
	return d, ok
}

// WithTraceContext adds trace_id and span_id of the active span, if any
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

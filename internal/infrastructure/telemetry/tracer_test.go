package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func newRecordingProvider(t *testing.T, ratio float64) (*TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewTracerProviderWithProcessor("stockledger-test", ratio, recorder, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func useGlobalProvider(t *testing.T, tp *TracerProvider) {
	t.Helper()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp.Provider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	assert.NotNil(t, tp.Provider())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOnSampler", sampler(2).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartSpan(t *testing.T) {
	tp, recorder := newRecordingProvider(t, 1)
	useGlobalProvider(t, tp)

	t.Run("success", func(t *testing.T) {
		_, span := StartSpan(context.Background(), "ok-span", attribute.String("route", "SALE/POST"))
		EndSpan(span, nil)
	})
	t.Run("failure", func(t *testing.T) {
		_, span := StartSpan(context.Background(), "failed-span")
		EndSpan(span, errors.New("insufficient stock"))
	})

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "ok-span", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("route", "SALE/POST"))

	assert.Equal(t, "failed-span", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "insufficient stock", ended[1].Status().Description)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}

func TestNeverSampledSpansAreNotRecorded(t *testing.T) {
	tp, recorder := newRecordingProvider(t, 0)
	_, span := tp.Tracer(TracerName).Start(context.Background(), "dropped")
	span.End()
	assert.Empty(t, recorder.Ended())
}

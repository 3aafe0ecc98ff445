package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap/zaptest"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.ForceFlush(context.Background()))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestFloatCounter_IgnoresNegative(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProviderWithReader("stockledger-test", reader, nil)
	require.NoError(t, err)
	assert.True(t, mp.IsEnabled())

	c, err := NewFloatCounter(mp.Meter("test"), "amount", "amount", "1")
	require.NoError(t, err)
	ctx := context.Background()
	c.Add(ctx, 2.5)
	c.Add(ctx, -1)
	c.Add(ctx, 0.5)

	got := collect(t, reader)
	assert.InDelta(t, 3.0, floatSum(t, got["amount"]), 1e-9)
}

func TestCounter_Inc(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProviderWithReader("stockledger-test", reader, nil)
	require.NoError(t, err)

	c, err := NewCounter(mp.Meter("test"), "hits", "hits", "1")
	require.NoError(t, err)
	c.Inc(context.Background())
	c.Add(context.Background(), 4)

	got := collect(t, reader)
	assert.Equal(t, int64(5), intSum(t, got["hits"]))
}

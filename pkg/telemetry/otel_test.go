package telemetry

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestTelemetrySetup(t *testing.T) {
	tel, err := SetupWithWriter("test-service", io.Discard)
	require.NoError(t, err)

	assert.NotNil(t, otel.GetTracerProvider())
	assert.NotNil(t, otel.GetMeterProvider())
	assert.NotNil(t, GetTracer("test-tracer"))
	assert.NotNil(t, GetMeter("test-meter"))

	_, span := StartSpan(context.Background(), "leg", attribute.Int("leg", 0))
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestMetricsHolder_State(t *testing.T) {
	require.NoError(t, InitMetrics("test-metrics"))
	m := GetGlobalMetrics()

	m.SetRunActive(true)
	assert.True(t, m.GetRunActive())
	m.SetRunActive(false)
	assert.False(t, m.GetRunActive())

	m.SetPortfolioValue("0xabc", 12.5)
	values := m.GetPortfolioValues()
	assert.Equal(t, 12.5, values["0xabc"])

	// returned map is a copy
	values["0xabc"] = 0
	assert.Equal(t, 12.5, m.GetPortfolioValues()["0xabc"])

	ctx := context.Background()
	m.RecordRun(ctx, "sequential", "ok")
	m.RecordLeg(ctx, "success", "", 12)
	m.RecordQuoteLatency(ctx, "0x2::sui::SUI", 40, true)
	m.RecordHTTPRequest(ctx, "aggregator", 200)
}

func TestMetricsHolder_UninitializedIsNoop(t *testing.T) {
	m := &MetricsHolder{portfolioValue: make(map[string]float64)}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "batched", "failed")
		m.RecordLeg(ctx, "error", "quote", 1)
		m.RecordQuoteLatency(ctx, "x", 1, false)
		m.RecordHTTPRequest(ctx, "x", 500)
	})
}

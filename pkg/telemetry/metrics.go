package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricRunsTotal         = "basket_swap_runs_total"
	MetricLegsTotal         = "basket_swap_legs_total"
	MetricLegDuration       = "basket_swap_leg_duration_ms"
	MetricQuoteLatency      = "basket_swap_quote_latency_ms"
	MetricRunActive         = "basket_swap_run_active"
	MetricPortfolioValueUSD = "basket_swap_portfolio_value_usd"
	MetricHTTPRequestsTotal = "basket_swap_http_requests_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	RunsTotal         metric.Int64Counter
	LegsTotal         metric.Int64Counter
	LegDuration       metric.Float64Histogram
	QuoteLatency      metric.Float64Histogram
	HTTPRequestsTotal metric.Int64Counter
	RunActive         metric.Int64ObservableGauge
	PortfolioValueUSD metric.Float64ObservableGauge

	// State for observable gauges
	mu             sync.RWMutex
	runActive      int64
	portfolioValue map[string]float64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			portfolioValue: make(map[string]float64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.RunsTotal, err = meter.Int64Counter(MetricRunsTotal, metric.WithDescription("Completed purchase runs"))
	if err != nil {
		return err
	}

	m.LegsTotal, err = meter.Int64Counter(MetricLegsTotal, metric.WithDescription("Swap legs reaching a terminal status"))
	if err != nil {
		return err
	}

	m.LegDuration, err = meter.Float64Histogram(MetricLegDuration, metric.WithDescription("Time from leg start to terminal status"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.QuoteLatency, err = meter.Float64Histogram(MetricQuoteLatency, metric.WithDescription("Latency of aggregator quote calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(MetricHTTPRequestsTotal, metric.WithDescription("Outbound HTTP requests by host and outcome"))
	if err != nil {
		return err
	}

	// Observables
	m.RunActive, err = meter.Int64ObservableGauge(MetricRunActive, metric.WithDescription("1 while a purchase run is in progress"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.runActive)
			return nil
		}))
	if err != nil {
		return err
	}

	m.PortfolioValueUSD, err = meter.Float64ObservableGauge(MetricPortfolioValueUSD, metric.WithDescription("Last computed portfolio value in USD"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for addr, val := range m.portfolioValue {
				obs.Observe(val, metric.WithAttributes(attribute.String("address", addr)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Recording helpers. Instruments are nil until InitMetrics ran, so each helper is a no-op then.

func (m *MetricsHolder) RecordRun(ctx context.Context, mode, outcome string) {
	if m.RunsTotal == nil {
		return
	}
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func (m *MetricsHolder) RecordLeg(ctx context.Context, status, kind string, durationMs float64) {
	if m.LegsTotal != nil {
		m.LegsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("kind", kind),
		))
	}
	if m.LegDuration != nil {
		m.LegDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("status", status)))
	}
}

func (m *MetricsHolder) RecordQuoteLatency(ctx context.Context, tokenOut string, ms float64, ok bool) {
	if m.QuoteLatency == nil {
		return
	}
	m.QuoteLatency.Record(ctx, ms, metric.WithAttributes(
		attribute.String("token_out", tokenOut),
		attribute.Bool("ok", ok),
	))
}

func (m *MetricsHolder) RecordHTTPRequest(ctx context.Context, host string, status int) {
	if m.HTTPRequestsTotal == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("host", host),
		attribute.Int("status", status),
	))
}

func (m *MetricsHolder) SetRunActive(active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runActive = val
}

func (m *MetricsHolder) SetPortfolioValue(address string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolioValue[address] = value
}

func (m *MetricsHolder) GetRunActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runActive == 1
}

func (m *MetricsHolder) GetPortfolioValues() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64, len(m.portfolioValue))
	for k, v := range m.portfolioValue {
		res[k] = v
	}
	return res
}

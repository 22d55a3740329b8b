package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// InitMetrics installs only the Prometheus meter provider. basketd uses it when tracing is
// disabled; tests use it to avoid stdout exporters.
func InitMetrics(serviceName string) error {
	res, err := newResource(serviceName)
	if err != nil {
		return err
	}
	_, err = newMeterProvider(serviceName, res)
	return err
}

// newMeterProvider exports through the default Prometheus registry, served on /metrics, and
// binds the application instruments to it
func newMeterProvider(serviceName string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	if err := GetGlobalMetrics().InitMetrics(mp.Meter(serviceName)); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return mp, nil
}

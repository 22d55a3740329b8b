package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	tracetype "go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for purchase and leg spans
const TracerName = "basket_swap"

// Telemetry owns the trace, metric and log providers installed by Setup
type Telemetry struct {
	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider
}

// Setup installs tracing, metrics and the OTel log bridge, exporting spans and logs to stdout
func Setup(serviceName string) (*Telemetry, error) {
	return SetupWithWriter(serviceName, os.Stdout)
}

// SetupWithWriter is Setup with span and log exports written to w
func SetupWithWriter(serviceName string, w io.Writer) (*Telemetry, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	spans, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(spans), trace.WithResource(res))

	mp, err := newMeterProvider(serviceName, res)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	logs, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logs)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	global.SetLoggerProvider(lp)
	return &Telemetry{tp: tp, mp: mp, lp: lp}, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes pending spans, metrics and logs
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider: %w", err))
	}
	if err := t.mp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if err := t.lp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log provider: %w", err))
	}
	return errors.Join(errs...)
}

func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

func GetTracer(name string) tracetype.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// StartSpan starts a span under TracerName
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, tracetype.Span) {
	return GetTracer(TracerName).Start(ctx, name, tracetype.WithAttributes(attrs...))
}

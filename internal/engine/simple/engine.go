package simple

import (
	"context"
	"errors"
	"sync"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/engine"
	"basket_swap/internal/trading/orchestrator"
	apperrors "basket_swap/pkg/errors"
	"basket_swap/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// SimpleEngine runs purchases in-process and records every completed run
type SimpleEngine struct {
	orch   *orchestrator.Orchestrator
	store  core.IRunStore
	logger core.ILogger

	// OTel
	tracer          trace.Tracer
	purchaseCounter metric.Int64Counter
	latencyHist     metric.Float64Histogram

	mu      sync.RWMutex
	lastRun *core.RunSnapshot
}

// NewSimpleEngine creates a new purchase engine
func NewSimpleEngine(orch *orchestrator.Orchestrator, store core.IRunStore, logger core.ILogger) engine.Engine {
	tracer := telemetry.GetTracer("purchase-engine")
	meter := telemetry.GetMeter("purchase-engine")

	purchaseCounter, _ := meter.Int64Counter("engine_purchases_total",
		metric.WithDescription("Total number of purchases requested"))
	latencyHist, _ := meter.Float64Histogram("engine_purchase_latency_seconds",
		metric.WithDescription("Latency of purchases in seconds"))

	return &SimpleEngine{
		orch:            orch,
		store:           store,
		logger:          logger.WithField("component", "simple_engine"),
		tracer:          tracer,
		purchaseCounter: purchaseCounter,
		latencyHist:     latencyHist,
	}
}

// Start restores the last recorded run so it is visible before the first purchase
func (e *SimpleEngine) Start(ctx context.Context) error {
	e.logger.Info("Starting purchase engine")

	runs, err := e.store.ListRuns(ctx, 1)
	if err != nil {
		e.logger.Warn("Failed to load run history", "error", err)
		return nil
	}
	if len(runs) == 0 {
		e.logger.Info("No recorded runs, starting fresh")
		return nil
	}

	e.mu.Lock()
	e.lastRun = &runs[0]
	e.mu.Unlock()
	e.logger.Info("Restored last run", "run_id", runs[0].ID, "all_ok", runs[0].AllOK)
	return nil
}

// Stop cancels a running purchase. The submission in flight still completes.
func (e *SimpleEngine) Stop() error {
	e.logger.Info("Stopping purchase engine")
	e.orch.Cancel()
	return nil
}

// Purchase executes req and records the completed run
func (e *SimpleEngine) Purchase(ctx context.Context, req core.PurchaseRequest) (core.RunSnapshot, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "Purchase",
		trace.WithAttributes(
			attribute.String("basket", req.BasketID),
			attribute.String("mode", string(req.Mode)),
			attribute.String("amount", req.Amount.String()),
		),
	)
	defer span.End()

	snap, err := e.orch.Execute(ctx, req)
	if err != nil {
		span.RecordError(err)
	}

	outcome := "completed"
	if errors.Is(err, apperrors.ErrAlreadyRunning) {
		outcome = "rejected"
	} else if snap.ID == "" {
		outcome = "failed"
	}
	if e.purchaseCounter != nil {
		e.purchaseCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if e.latencyHist != nil {
		e.latencyHist.Record(ctx, time.Since(start).Seconds())
	}

	if snap.ID != "" {
		e.record(ctx, snap)
	}
	return snap, err
}

func (e *SimpleEngine) record(ctx context.Context, snap core.RunSnapshot) {
	e.mu.Lock()
	e.lastRun = &snap
	e.mu.Unlock()

	if err := e.store.SaveRun(context.WithoutCancel(ctx), snap); err != nil {
		e.logger.Error("Failed to record run", "run_id", snap.ID, "error", err)
	}
}

func (e *SimpleEngine) Cancel() bool {
	return e.orch.Cancel()
}

// Snapshot returns the live run, or the last recorded one when nothing ran since start
func (e *SimpleEngine) Snapshot() core.RunSnapshot {
	snap := e.orch.Snapshot()
	if snap.Status != core.RunNotStarted {
		return snap
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastRun != nil {
		return *e.lastRun
	}
	return snap
}

func (e *SimpleEngine) History(ctx context.Context, limit int) ([]core.RunSnapshot, error) {
	return e.store.ListRuns(ctx, limit)
}

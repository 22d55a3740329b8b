// Package orchestrator drives basket purchases through quote, build and execution, one run at
// a time.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/trading/allocation"
	"basket_swap/internal/trading/planner"
	"basket_swap/pkg/concurrency"
	apperrors "basket_swap/pkg/errors"
	"basket_swap/pkg/telemetry"

	"github.com/google/uuid"
)

// Config holds the per-service settings applied to every run
type Config struct {
	Funding        core.Asset
	Slippage       float64
	Commission     core.Commission
	ExecuteOptions core.ExecuteOptions
	PrefetchQuotes bool
	DecimalsOf     planner.DecimalsFunc
}

// Orchestrator owns the single purchase run
type Orchestrator struct {
	cfg      Config
	quotes   core.IQuoteClient
	builder  core.ITxBuilder
	executor core.IExecutor
	wallets  core.IWalletSource
	pool     *concurrency.WorkerPool
	logger   core.ILogger
	metrics  *telemetry.MetricsHolder

	// stateMu orders claim, release and Cancel so a cancel is never lost or carried over
	stateMu   sync.Mutex
	busy      atomic.Bool
	cancelReq atomic.Bool

	mu  sync.RWMutex
	run core.RunSnapshot

	obsMu     sync.RWMutex
	observers []Observer
}

// NewOrchestrator creates an orchestrator. pool may be nil, quotes are then fetched one by one.
func NewOrchestrator(
	cfg Config,
	quotes core.IQuoteClient,
	builder core.ITxBuilder,
	executor core.IExecutor,
	wallets core.IWalletSource,
	pool *concurrency.WorkerPool,
	logger core.ILogger,
) *Orchestrator {
	if cfg.DecimalsOf == nil {
		cfg.DecimalsOf = planner.AssetDecimals
	}
	if cfg.ExecuteOptions.RequestType == "" {
		cfg.ExecuteOptions = core.DefaultExecuteOptions()
	}
	return &Orchestrator{
		cfg:      cfg,
		quotes:   quotes,
		builder:  builder,
		executor: executor,
		wallets:  wallets,
		pool:     pool,
		logger:   logger.WithField("component", "orchestrator"),
		metrics:  telemetry.GetGlobalMetrics(),
		run:      core.RunSnapshot{Status: core.RunNotStarted},
	}
}

// Funding returns the funding asset legs are paid from
func (o *Orchestrator) Funding() core.Asset {
	return o.cfg.Funding
}

// Subscribe registers an observer for every following run
func (o *Orchestrator) Subscribe(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

// Snapshot returns a copy of the current or last run
func (o *Orchestrator) Snapshot() core.RunSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return cloneSnapshot(o.run)
}

// IsRunning reports whether a run holds the orchestrator
func (o *Orchestrator) IsRunning() bool {
	return o.busy.Load()
}

// Cancel asks the running run to stop before its next leg. A submission already in flight
// completes. Returns false when nothing is running.
func (o *Orchestrator) Cancel() bool {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if !o.busy.Load() {
		return false
	}
	o.cancelReq.Store(true)
	o.logger.Info("Cancellation requested")
	return true
}

// claim takes the single run slot with a clear cancel flag
func (o *Orchestrator) claim() bool {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.busy.Load() {
		return false
	}
	o.cancelReq.Store(false)
	o.busy.Store(true)
	return true
}

// release frees the slot. A cancel that arrives late is dropped with the run it targeted.
func (o *Orchestrator) release() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.cancelReq.Store(false)
	o.busy.Store(false)
}

// Execute runs a purchase to completion with in-process steps
func (o *Orchestrator) Execute(ctx context.Context, req core.PurchaseRequest) (core.RunSnapshot, error) {
	return o.ExecuteWithSteps(ctx, req, DirectSteps{})
}

// ExecuteWithSteps runs a purchase, routing every collaborator call through steps.
//
// It returns ErrAlreadyRunning while another run holds the orchestrator, a ConfigurationError
// when no wallet or session is available and a BatchAbortError when a batched run fails
// before submission. Leg failures are recorded in the snapshot and never returned.
func (o *Orchestrator) ExecuteWithSteps(ctx context.Context, req core.PurchaseRequest, steps StepRunner) (core.RunSnapshot, error) {
	mode, err := core.ParseExecutionMode(string(req.Mode))
	if err != nil {
		return core.RunSnapshot{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidMode, err)
	}
	if err := allocation.Validate(req.Weights); err != nil {
		return core.RunSnapshot{}, err
	}
	legs, err := planner.Plan(req.Weights, req.Amount, o.cfg.Funding, o.cfg.DecimalsOf)
	if err != nil {
		return core.RunSnapshot{}, err
	}

	if !o.claim() {
		return core.RunSnapshot{}, apperrors.ErrAlreadyRunning
	}
	defer o.release()

	session, err := o.acquireSession(ctx)
	if err != nil {
		return core.RunSnapshot{}, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.logger.Warn("Failed to close session", "error", err)
		}
	}()

	runID, err := runStep(ctx, steps, "run-id", func(context.Context) (string, error) {
		return uuid.NewString(), nil
	})
	if err != nil {
		return core.RunSnapshot{}, fmt.Errorf("failed to allocate run id: %w", err)
	}

	o.begin(runID, req, mode, legs)
	logger := o.logger.WithFields(map[string]interface{}{"run_id": runID, "mode": string(mode)})
	logger.Info("Purchase started", "basket", req.BasketID, "amount", req.Amount.String(), "legs", len(legs))

	var runErr error
	switch mode {
	case core.ModeBatched:
		runErr = o.executeBatched(ctx, steps, session, legs, logger)
	default:
		o.executeSequential(ctx, steps, session, legs, logger)
	}

	snap := o.complete(runErr)
	logger.Info("Purchase completed", "all_ok", snap.AllOK, "cancelled", snap.Cancelled, "results", len(snap.Results))
	return snap, runErr
}

func (o *Orchestrator) acquireSession(ctx context.Context) (core.ISession, error) {
	if o.wallets == nil || o.executor == nil {
		return nil, &core.ConfigurationError{Reason: "no wallet source or executor configured"}
	}
	wallet, err := o.wallets.CurrentWallet(ctx)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "wallet unavailable", Err: fmt.Errorf("%w: %v", apperrors.ErrNoSignerConfigured, err)}
	}
	if wallet == nil {
		return nil, &core.ConfigurationError{Reason: "no wallet connected"}
	}
	session, err := o.executor.Acquire(ctx, wallet)
	if err != nil {
		return nil, &core.ConfigurationError{Reason: "signer unavailable", Err: fmt.Errorf("%w: %v", apperrors.ErrNoSignerConfigured, err)}
	}
	return session, nil
}

// cancelled reports whether the run must stop before starting another leg
func (o *Orchestrator) cancelled(ctx context.Context) bool {
	return o.cancelReq.Load() || ctx.Err() != nil
}

func (o *Orchestrator) begin(runID string, req core.PurchaseRequest, mode core.ExecutionMode, legs []core.SwapLeg) {
	o.mu.Lock()
	o.run = core.RunSnapshot{
		ID:        runID,
		BasketID:  req.BasketID,
		Mode:      mode,
		Status:    core.RunRunning,
		Amount:    req.Amount,
		Weights:   req.Weights.Clone(),
		Legs:      append([]core.SwapLeg(nil), legs...),
		Results:   make([]core.SwapResult, 0, len(legs)),
		StartedAt: time.Now(),
	}
	snap := cloneSnapshot(o.run)
	o.mu.Unlock()

	o.metrics.SetRunActive(true)
	o.notify(func(obs Observer) { obs.OnRunStarted(snap) })
}

// appendResult adds a result and returns its position
func (o *Orchestrator) appendResult(r core.SwapResult) int {
	o.mu.Lock()
	o.run.Results = append(o.run.Results, r)
	pos := len(o.run.Results) - 1
	runID := o.run.ID
	o.mu.Unlock()

	o.notify(func(obs Observer) { obs.OnLegResult(runID, r) })
	return pos
}

// resolveResult moves the result at pos to its terminal status
func (o *Orchestrator) resolveResult(pos int, r core.SwapResult) {
	o.mu.Lock()
	o.run.Results[pos] = r
	runID := o.run.ID
	o.mu.Unlock()

	o.notify(func(obs Observer) { obs.OnLegResult(runID, r) })
}

func (o *Orchestrator) markCancelled() {
	o.mu.Lock()
	o.run.Cancelled = true
	o.mu.Unlock()
}

func (o *Orchestrator) complete(runErr error) core.RunSnapshot {
	o.mu.Lock()
	allOK := !o.run.Cancelled && runErr == nil
	for _, r := range o.run.Results {
		if r.Status != core.ResultSuccess {
			allOK = false
		}
	}
	o.run.Status = core.RunCompleted
	o.run.AllOK = allOK
	o.run.CompletedAt = time.Now()
	if runErr != nil {
		o.run.Error = runErr.Error()
	}
	snap := cloneSnapshot(o.run)
	o.mu.Unlock()

	outcome := "ok"
	switch {
	case snap.Cancelled:
		outcome = "cancelled"
	case runErr != nil:
		outcome = "aborted"
	case !allOK:
		outcome = "partial"
	}
	o.metrics.SetRunActive(false)
	o.metrics.RecordRun(context.Background(), string(snap.Mode), outcome)
	o.notify(func(obs Observer) { obs.OnRunCompleted(snap) })
	return snap
}

func cloneSnapshot(s core.RunSnapshot) core.RunSnapshot {
	s.Weights = s.Weights.Clone()
	if s.Legs != nil {
		s.Legs = append([]core.SwapLeg(nil), s.Legs...)
	}
	if s.Results != nil {
		s.Results = append([]core.SwapResult(nil), s.Results...)
	}
	return s
}

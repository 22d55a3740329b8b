package durable

import (
	"context"
	"fmt"
	"time"

	"basket_swap/internal/core"
	"basket_swap/internal/engine"
	"basket_swap/internal/trading/orchestrator"
	apperrors "basket_swap/pkg/errors"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
)

// DBOSEngine implements the engine.Engine interface using DBOS
type DBOSEngine struct {
	dbosCtx   dbos.DBOSContext
	workflows *PurchaseWorkflows
	orch      *orchestrator.Orchestrator
	store     core.IRunStore
	logger    core.ILogger
}

// NewDBOSEngine creates a new DBOS workflow engine. Workflows are registered here, before
// Start launches the runtime.
func NewDBOSEngine(
	dbosCtx dbos.DBOSContext,
	orch *orchestrator.Orchestrator,
	store core.IRunStore,
	logger core.ILogger,
) engine.Engine {
	e := &DBOSEngine{
		dbosCtx:   dbosCtx,
		workflows: NewPurchaseWorkflows(orch),
		orch:      orch,
		store:     store,
		logger:    logger.WithField("component", "dbos_engine"),
	}
	dbos.RegisterWorkflow(dbosCtx, e.workflows.Purchase)
	return e
}

// Start starts the DBOS runtime, which also recovers interrupted purchases
func (e *DBOSEngine) Start(ctx context.Context) error {
	e.logger.Info("Starting DBOS engine")
	return e.dbosCtx.Launch()
}

// Stop stops the engine
func (e *DBOSEngine) Stop() error {
	e.logger.Info("Stopping DBOS engine")
	e.orch.Cancel()
	e.dbosCtx.Shutdown(30 * time.Second)
	return nil
}

// Purchase runs a durable purchase workflow and waits for it
func (e *DBOSEngine) Purchase(ctx context.Context, req core.PurchaseRequest) (core.RunSnapshot, error) {
	// Reject before a workflow is recorded that could never run
	if e.orch.IsRunning() {
		return core.RunSnapshot{}, apperrors.ErrAlreadyRunning
	}

	handle, err := e.dbosCtx.RunWorkflow(e.dbosCtx, e.workflows.Purchase, &req)
	if err != nil {
		return core.RunSnapshot{}, fmt.Errorf("failed to start purchase workflow: %w", err)
	}

	result, err := handle.GetResult()
	snap, ok := result.(core.RunSnapshot)
	if !ok {
		snap = e.orch.Snapshot()
	}
	if snap.ID != "" {
		if saveErr := e.store.SaveRun(context.WithoutCancel(ctx), snap); saveErr != nil {
			e.logger.Error("Failed to record run", "run_id", snap.ID, "error", saveErr)
		}
	}
	return snap, err
}

func (e *DBOSEngine) Cancel() bool {
	return e.orch.Cancel()
}

func (e *DBOSEngine) Snapshot() core.RunSnapshot {
	return e.orch.Snapshot()
}

func (e *DBOSEngine) History(ctx context.Context, limit int) ([]core.RunSnapshot, error) {
	return e.store.ListRuns(ctx, limit)
}

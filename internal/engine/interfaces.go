package engine

import (
	"context"

	"basket_swap/internal/core"
)

// Engine defines the unified interface for both the simple and the durable purchase engines.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error

	// Purchase runs a basket purchase to completion and returns the final run snapshot
	Purchase(ctx context.Context, req core.PurchaseRequest) (core.RunSnapshot, error)
	Cancel() bool
	Snapshot() core.RunSnapshot
	History(ctx context.Context, limit int) ([]core.RunSnapshot, error)
}

package portfolio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"basket_swap/internal/core"
	"basket_swap/pkg/telemetry"
)

// Tracker revalues a set of addresses on an interval and keeps the latest valuation of each.
// It is the only writer of the portfolio value gauge, so the gauge carries one series per
// configured address.
type Tracker struct {
	valuer   *Valuer
	interval time.Duration
	logger   core.ILogger

	mu        sync.RWMutex
	addresses map[string]struct{}
	latest    map[string]*Valuation

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewTracker(valuer *Valuer, interval time.Duration, logger core.ILogger) *Tracker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Tracker{
		valuer:    valuer,
		interval:  interval,
		logger:    logger.WithField("component", "portfolio_tracker"),
		addresses: make(map[string]struct{}),
		latest:    make(map[string]*Valuation),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Track adds address to the refresh set
func (t *Tracker) Track(address string) {
	if address == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addresses[address] = struct{}{}
}

// Latest returns the last valuation of address, or nil
func (t *Tracker) Latest(address string) *Valuation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest[address]
}

// Refresh values every tracked address once
func (t *Tracker) Refresh(ctx context.Context) {
	t.mu.RLock()
	addrs := make([]string, 0, len(t.addresses))
	for a := range t.addresses {
		addrs = append(addrs, a)
	}
	t.mu.RUnlock()

	for _, a := range addrs {
		val, err := t.valuer.Value(ctx, a)
		if err != nil {
			t.logger.Warn("Portfolio refresh failed", "address", a, "error", err)
			continue
		}
		t.mu.Lock()
		t.latest[a] = val
		t.mu.Unlock()
		telemetry.GetGlobalMetrics().SetPortfolioValue(a, val.TotalUSD.InexactFloat64())
	}
}

func (t *Tracker) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	t.logger.Info("Starting portfolio tracker", "interval", t.interval)
	go t.runLoop(ctx)
	return nil
}

func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	if t.started.Load() {
		<-t.done
	}
}

func (t *Tracker) runLoop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}

package orchestrator

import (
	"basket_swap/internal/core"
)

// Observer receives run progress as it happens. Callbacks run on the orchestrator's
// goroutine and must not block.
type Observer interface {
	OnRunStarted(snap core.RunSnapshot)
	OnLegResult(runID string, result core.SwapResult)
	OnRunCompleted(snap core.RunSnapshot)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	RunStarted   func(core.RunSnapshot)
	LegResult    func(string, core.SwapResult)
	RunCompleted func(core.RunSnapshot)
}

func (f ObserverFuncs) OnRunStarted(snap core.RunSnapshot) {
	if f.RunStarted != nil {
		f.RunStarted(snap)
	}
}

func (f ObserverFuncs) OnLegResult(runID string, result core.SwapResult) {
	if f.LegResult != nil {
		f.LegResult(runID, result)
	}
}

func (f ObserverFuncs) OnRunCompleted(snap core.RunSnapshot) {
	if f.RunCompleted != nil {
		f.RunCompleted(snap)
	}
}

func (o *Orchestrator) observersSnapshot() []Observer {
	o.obsMu.RLock()
	defer o.obsMu.RUnlock()
	out := make([]Observer, len(o.observers))
	copy(out, o.observers)
	return out
}

func (o *Orchestrator) notify(fn func(Observer)) {
	for _, obs := range o.observersSnapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("Observer panicked", "panic", r)
				}
			}()
			fn(obs)
		}()
	}
}

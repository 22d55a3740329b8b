package liveserver

import (
	"sync"

	"basket_swap/internal/core"
)

// RunBroadcaster is an orchestrator observer that publishes run events on the hub and keeps
// the latest run state for late joiners
type RunBroadcaster struct {
	hub *Hub

	mu   sync.RWMutex
	last *core.RunSnapshot
}

// NewRunBroadcaster wires itself in as the hub greeting
func NewRunBroadcaster(hub *Hub) *RunBroadcaster {
	b := &RunBroadcaster{hub: hub}
	hub.SetGreeting(b.greeting)
	return b
}

func (b *RunBroadcaster) OnRunStarted(snap core.RunSnapshot) {
	b.store(snap)
	b.hub.Broadcast(NewRunStartedMessage(snap))
}

func (b *RunBroadcaster) OnLegResult(runID string, result core.SwapResult) {
	b.mu.Lock()
	if b.last != nil && b.last.ID == runID {
		b.last.Results = upsertResult(b.last.Results, result)
	}
	b.mu.Unlock()
	b.hub.Broadcast(NewLegResultMessage(runID, result))
}

func (b *RunBroadcaster) OnRunCompleted(snap core.RunSnapshot) {
	b.store(snap)
	b.hub.Broadcast(NewRunCompletedMessage(snap))
}

// Latest returns a copy of the most recent run, if any
func (b *RunBroadcaster) Latest() (core.RunSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return core.RunSnapshot{}, false
	}
	return cloneSnapshot(*b.last), true
}

func (b *RunBroadcaster) store(snap core.RunSnapshot) {
	c := cloneSnapshot(snap)
	b.mu.Lock()
	b.last = &c
	b.mu.Unlock()
}

func (b *RunBroadcaster) greeting() (Message, bool) {
	snap, ok := b.Latest()
	if !ok {
		return Message{}, false
	}
	return NewSnapshotMessage(snap), true
}

// upsertResult replaces the result for the same leg (the batch result included) or appends it
func upsertResult(results []core.SwapResult, r core.SwapResult) []core.SwapResult {
	for i := range results {
		if results[i].LegIndex == r.LegIndex {
			results[i] = r
			return results
		}
	}
	return append(results, r)
}

func cloneSnapshot(snap core.RunSnapshot) core.RunSnapshot {
	snap.Legs = append([]core.SwapLeg(nil), snap.Legs...)
	snap.Results = append([]core.SwapResult(nil), snap.Results...)
	snap.Weights = append(core.WeightVector(nil), snap.Weights...)
	return snap
}

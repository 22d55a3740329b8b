package main

import (
	"fmt"
	"io"
	"sync"

	"basket_swap/internal/core"
)

// printer writes run progress as legs resolve. It follows one run and prints every leg once,
// whether the result arrives as an event or inside a snapshot.
type printer struct {
	out io.Writer

	mu       sync.Mutex
	runID    string
	started  bool
	printed  map[int]bool
	finished bool
	done     chan core.RunSnapshot
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:     out,
		printed: make(map[int]bool),
		done:    make(chan core.RunSnapshot, 1),
	}
}

// follow pins the printer to runID. Without it the first run seen is followed.
func (p *printer) follow(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
}

// Done delivers the final snapshot once the followed run completes
func (p *printer) Done() <-chan core.RunSnapshot {
	return p.done
}

func (p *printer) OnRunStarted(snap core.RunSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accept(snap.ID) {
		return
	}
	p.header(snap)
}

func (p *printer) OnLegResult(runID string, result core.SwapResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accept(runID) {
		return
	}
	p.leg(result)
}

func (p *printer) OnRunCompleted(snap core.RunSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accept(snap.ID) || p.finished {
		return
	}
	p.header(snap)
	for _, r := range snap.Results {
		p.leg(r)
	}
	p.summary(snap)
	p.finished = true
	p.done <- snap
}

// sync prints whatever a polled snapshot adds and completes the run when it has ended
func (p *printer) sync(snap core.RunSnapshot) {
	if snap.Status == core.RunCompleted {
		p.OnRunCompleted(snap)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.accept(snap.ID) {
		return
	}
	p.header(snap)
	for _, r := range snap.Results {
		p.leg(r)
	}
}

func (p *printer) accept(runID string) bool {
	if runID == "" {
		return false
	}
	if p.runID == "" {
		p.runID = runID
	}
	return p.runID == runID
}

func (p *printer) header(snap core.RunSnapshot) {
	if p.started {
		return
	}
	p.started = true
	fmt.Fprintf(p.out, "Run %s: buying %s with %s (%s, %d legs)\n",
		snap.ID, snap.BasketID, snap.Amount, snap.Mode, len(snap.Legs))
}

func (p *printer) leg(r core.SwapResult) {
	if !r.IsTerminal() || p.printed[r.LegIndex] {
		return
	}
	p.printed[r.LegIndex] = true

	name := r.Symbol
	if r.LegIndex == core.BatchLegIndex {
		name = "batch"
	}

	switch {
	case r.Skipped:
		fmt.Fprintf(p.out, "  [skip] %-8s nothing to swap\n", name)
	case r.Status == core.ResultSuccess:
		fmt.Fprintf(p.out, "  [ok]   %-8s %s\n", name, r.Digest)
	case r.Kind == core.ErrorKindNone:
		fmt.Fprintf(p.out, "  [fail] %-8s %s\n", name, r.Error)
	default:
		fmt.Fprintf(p.out, "  [fail] %-8s %s: %s\n", name, r.Kind, r.Error)
	}
}

func (p *printer) summary(snap core.RunSnapshot) {
	ok := 0
	for _, r := range snap.Results {
		if r.Status == core.ResultSuccess {
			ok++
		}
	}

	switch {
	case snap.Cancelled:
		fmt.Fprintf(p.out, "Cancelled: %d of %d legs succeeded\n", ok, len(snap.Results))
	case snap.AllOK:
		fmt.Fprintf(p.out, "Completed: %d of %d legs succeeded\n", ok, len(snap.Results))
	default:
		fmt.Fprintf(p.out, "Completed with errors: %d of %d legs succeeded\n", ok, len(snap.Results))
	}
	if snap.Error != "" {
		fmt.Fprintf(p.out, "Error: %s\n", snap.Error)
	}
}

package alert

import (
	"context"
	"fmt"
	"strings"

	"basket_swap/internal/core"
)

// RunNotifier raises an alert when a purchase run completes. It satisfies the orchestrator's
// Observer interface.
type RunNotifier struct {
	manager *AlertManager
}

func NewRunNotifier(manager *AlertManager) *RunNotifier {
	return &RunNotifier{manager: manager}
}

func (n *RunNotifier) OnRunStarted(core.RunSnapshot) {}

func (n *RunNotifier) OnLegResult(string, core.SwapResult) {}

func (n *RunNotifier) OnRunCompleted(snap core.RunSnapshot) {
	title, level := Classify(snap)
	n.manager.Alert(context.Background(), title, summarize(snap), level, map[string]string{
		"run":    snap.ID,
		"basket": snap.BasketID,
		"mode":   string(snap.Mode),
		"amount": snap.Amount.String(),
	})
}

// Classify picks the alert title and level for a completed run
func Classify(snap core.RunSnapshot) (string, AlertLevel) {
	switch {
	case snap.Mode == core.ModeBatched && snap.Error != "":
		return "Batch purchase aborted", Error
	case snap.Cancelled:
		return "Purchase cancelled", Warning
	case snap.AllOK:
		return "Basket purchased successfully", Info
	default:
		return "Some swaps failed", Warning
	}
}

func summarize(snap core.RunSnapshot) string {
	var b strings.Builder
	if snap.Error != "" {
		fmt.Fprintf(&b, "%s\n", snap.Error)
	}
	for _, r := range snap.Results {
		switch {
		case r.Skipped:
			fmt.Fprintf(&b, "%s: skipped\n", r.Symbol)
		case r.Status == core.ResultSuccess:
			fmt.Fprintf(&b, "%s: ok %s\n", r.Symbol, r.Digest)
		default:
			fmt.Fprintf(&b, "%s: %s failed: %s\n", r.Symbol, r.Kind, r.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

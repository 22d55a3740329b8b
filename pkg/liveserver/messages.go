package liveserver

import "basket_swap/internal/core"

// Message is one frame on the progress stream
type Message struct {
	Type  string      `json:"type"`
	RunID string      `json:"run_id,omitempty"`
	Data  interface{} `json:"data"`
}

// Message types
const (
	TypeSnapshot     = "snapshot"
	TypeRunStarted   = "run_started"
	TypeLegResult    = "leg_result"
	TypeRunCompleted = "run_completed"
)

// NewSnapshotMessage carries the full run state, sent to clients on connect
func NewSnapshotMessage(snap core.RunSnapshot) Message {
	return Message{Type: TypeSnapshot, RunID: snap.ID, Data: snap}
}

func NewRunStartedMessage(snap core.RunSnapshot) Message {
	return Message{Type: TypeRunStarted, RunID: snap.ID, Data: snap}
}

func NewLegResultMessage(runID string, result core.SwapResult) Message {
	return Message{Type: TypeLegResult, RunID: runID, Data: result}
}

func NewRunCompletedMessage(snap core.RunSnapshot) Message {
	return Message{Type: TypeRunCompleted, RunID: snap.ID, Data: snap}
}

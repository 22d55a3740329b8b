package simple

import (
	"basket_swap/internal/core"
)

// Store defines the interface for run persistence
type Store = core.IRunStore

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	basket_id    TEXT NOT NULL,
	mode         TEXT NOT NULL,
	all_ok       INTEGER NOT NULL,
	data         TEXT NOT NULL,
	checksum     BLOB NOT NULL,
	completed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_completed_at ON runs (completed_at DESC);
`

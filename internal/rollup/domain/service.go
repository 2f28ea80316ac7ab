package domain

import (
	"context"
)

// SnapshotQuery selects snapshot rows of one table: a single Period, or the
// inclusive range From..To. Values use the table's canonical period text.
type SnapshotQuery struct {
	Table  string
	Period string
	From   string
	To     string
}

// TableStatus reports how far a table has been materialized.
type TableStatus struct {
	Table          Table  `json:"table"`
	FirstCommitted string `json:"first_committed,omitempty"`
	LastCommitted  string `json:"last_committed,omitempty"`
}

// ReadService serves committed rollup state.
type ReadService interface {
	Tables(ctx context.Context) ([]TableStatus, error)
	Snapshots(ctx context.Context, q SnapshotQuery) ([]Snapshot, error)
	History(ctx context.Context, table, period string) ([]HistoryRow, error)
	Commits(ctx context.Context, table, from, to string) ([]PeriodCommit, error)
}

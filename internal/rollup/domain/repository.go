package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/period"
	"gorm.io/datatypes"
)

// SnapshotRecord is the persisted form of a Snapshot.
type SnapshotRecord struct {
	ID           snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	RollupTable  string         `gorm:"size:128;not null;uniqueIndex:ux_rollup_snapshots_key,priority:1;index:idx_rollup_snapshots_period,priority:1"`
	DimKey       string         `gorm:"size:512;not null;uniqueIndex:ux_rollup_snapshots_key,priority:2"`
	Period       string         `gorm:"size:10;not null;uniqueIndex:ux_rollup_snapshots_key,priority:3;index:idx_rollup_snapshots_period,priority:2"`
	PeriodStart  time.Time      `gorm:"not null"`
	Labels       datatypes.JSON `gorm:"not null"`
	Quantity     int64          `gorm:"not null"`
	Amount       int64          `gorm:"not null"`
	Discount     int64          `gorm:"not null"`
	Transactions int64          `gorm:"not null"`
	History      datatypes.JSON
	CreatedAt    time.Time `gorm:"not null"`
}

func (SnapshotRecord) TableName() string { return "rollup_snapshots" }

// PeriodCommit is the ledger entry proving a (table, period) was written.
type PeriodCommit struct {
	ID          snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	RollupTable string       `gorm:"size:128;not null;uniqueIndex:ux_rollup_periods,priority:1"`
	Period      string       `gorm:"size:10;not null;uniqueIndex:ux_rollup_periods,priority:2"`
	Granularity string       `gorm:"size:8;not null"`
	PeriodStart time.Time    `gorm:"not null;index"`
	RowCount    int          `gorm:"not null"`
	RunID       string       `gorm:"size:26;not null"`
	CommittedAt time.Time    `gorm:"not null"`
}

func (PeriodCommit) TableName() string { return "rollup_periods" }

// ChainHead is the per-table row every commit locks before checking the
// ledger, so commits to one table are serialized.
type ChainHead struct {
	RollupTable string    `gorm:"primaryKey;size:128"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (ChainHead) TableName() string { return "rollup_chain_heads" }

// CommitRequest carries one period's complete output.
type CommitRequest struct {
	Table  Table
	Period period.Period
	// Predecessor is the period that must already be committed. Nil marks a
	// seed commit, which requires the table to have no commits at all.
	Predecessor *period.Period
	RunID       string
	Rows        []Snapshot
}

// SnapshotStore persists snapshots and the per-period commit ledger.
type SnapshotStore interface {
	LoadPeriod(ctx context.Context, table Table, p period.Period) ([]Snapshot, error)
	LastCommitted(ctx context.Context, table Table) (*period.Period, error)
	FirstCommitted(ctx context.Context, table Table) (*period.Period, error)
	IsCommitted(ctx context.Context, table Table, p period.Period) (bool, error)
	// Commit writes rows and the ledger entry atomically. It returns
	// ErrDuplicatePeriod when the period is already committed and
	// ErrOutOfOrderPeriod when the predecessor rule fails.
	Commit(ctx context.Context, req CommitRequest) (PeriodCommit, error)
	ListCommits(ctx context.Context, table Table, from, to period.Period) ([]PeriodCommit, error)
	ListRange(ctx context.Context, table Table, from, to period.Period) ([]Snapshot, error)
}

// DeltaSource aggregates one period of facts at a table's grain.
type DeltaSource interface {
	Extract(ctx context.Context, table Table, p period.Period) ([]Delta, error)
}

// Catalogue resolves the configured rollup tables.
type Catalogue interface {
	Tables() []Table
	Table(name string) (Table, error)
}

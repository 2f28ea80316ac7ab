package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/smallbiznis/retailsales/internal/rollup/repository"
	"github.com/smallbiznis/retailsales/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type catalogueStub []domain.Table

func (c catalogueStub) Tables() []domain.Table { return c }

func (c catalogueStub) Table(name string) (domain.Table, error) {
	for _, table := range c {
		if table.Name == name {
			return table, nil
		}
	}
	return domain.Table{}, domain.ErrUnknownTable
}

var (
	customerYearly = domain.Table{
		Name:         "customer_yearly",
		Dimensions:   []domain.Dimension{domain.DimensionCustomer},
		Granularity:  period.Year,
		TrackHistory: true,
	}
	categoryDaily = domain.Table{
		Name:        "category_daily",
		Dimensions:  []domain.Dimension{domain.DimensionCategory},
		Granularity: period.Day,
	}
)

func setupReadService(t *testing.T) (domain.SnapshotStore, domain.ReadService) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.SnapshotRecord{}, &domain.PeriodCommit{}, &domain.ChainHead{}))
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	store := repository.NewSnapshotStore(repository.New(repository.Params{DB: conn, Log: zap.NewNop(), GenID: node}))
	svc := New(Params{
		Log:       zap.NewNop(),
		Store:     store,
		Catalogue: catalogueStub{customerYearly, categoryDaily},
	})
	return store, svc
}

func commitYear(t *testing.T, store domain.SnapshotStore, y int, prev *period.Period, history []domain.HistoryEntry) {
	t.Helper()
	p := period.NewYear(y)
	_, err := store.Commit(context.Background(), domain.CommitRequest{
		Table:       customerYearly,
		Period:      p,
		Predecessor: prev,
		RunID:       "run",
		Rows: []domain.Snapshot{{
			Table:   customerYearly.Name,
			Period:  p,
			Key:     domain.Key{"c1"},
			Labels:  domain.Labels{"Ada"},
			Metrics: domain.Metrics{Quantity: int64(len(history)), Amount: 100, Transactions: 1},
			History: history,
		}},
	})
	require.NoError(t, err)
}

func TestSnapshotsAndHistory(t *testing.T) {
	store, svc := setupReadService(t)
	ctx := context.Background()

	y2023 := period.NewYear(2023)
	commitYear(t, store, 2023, nil, []domain.HistoryEntry{{Period: "2023", TotalAmount: 100}})
	commitYear(t, store, 2024, &y2023, []domain.HistoryEntry{
		{Period: "2023", TotalAmount: 100},
		{Period: "2024", TotalAmount: 250},
	})

	rows, err := svc.Snapshots(ctx, domain.SnapshotQuery{Table: "customer_yearly", Period: "2024"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Key{"c1"}, rows[0].Key)
	assert.Len(t, rows[0].History, 2)

	rows, err = svc.Snapshots(ctx, domain.SnapshotQuery{Table: "customer_yearly", From: "2023", To: "2024"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	history, err := svc.History(ctx, "customer_yearly", "2024")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2023", history[0].Entry.Period)
	assert.Equal(t, int64(250), history[1].Entry.TotalAmount)

	tables, err := svc.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "2023", tables[0].FirstCommitted)
	assert.Equal(t, "2024", tables[0].LastCommitted)
	assert.Empty(t, tables[1].LastCommitted)

	commits, err := svc.Commits(ctx, "customer_yearly", "2020", "2030")
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestReadServiceErrors(t *testing.T) {
	_, svc := setupReadService(t)
	ctx := context.Background()

	_, err := svc.Snapshots(ctx, domain.SnapshotQuery{Table: "missing", Period: "2024"})
	assert.True(t, errors.Is(err, domain.ErrUnknownTable))

	_, err = svc.Snapshots(ctx, domain.SnapshotQuery{Table: "customer_yearly", Period: "2024"})
	assert.True(t, errors.Is(err, domain.ErrNotCommitted))

	_, err = svc.Snapshots(ctx, domain.SnapshotQuery{Table: "customer_yearly", Period: "2024-01-01"})
	assert.True(t, errors.Is(err, period.ErrInvalidPeriod))

	_, err = svc.History(ctx, "category_daily", "2024-01-01")
	assert.True(t, errors.Is(err, domain.ErrInvalidTable))

	_, err = svc.Commits(ctx, "customer_yearly", "2025", "2024")
	assert.True(t, errors.Is(err, domain.ErrPeriodsNotAscending))
}

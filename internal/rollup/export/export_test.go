package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type readerStub struct {
	rows    []domain.Snapshot
	history []domain.HistoryRow
	err     error
}

func (r *readerStub) Tables(ctx context.Context) ([]domain.TableStatus, error) { return nil, nil }

func (r *readerStub) Snapshots(ctx context.Context, q domain.SnapshotQuery) ([]domain.Snapshot, error) {
	return r.rows, r.err
}

func (r *readerStub) History(ctx context.Context, table, p string) ([]domain.HistoryRow, error) {
	return r.history, nil
}

func (r *readerStub) Commits(ctx context.Context, table, from, to string) ([]domain.PeriodCommit, error) {
	return nil, nil
}

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

var customerYearly = domain.Table{
	Name:         "customer_yearly",
	Dimensions:   []domain.Dimension{domain.DimensionCustomer},
	Granularity:  period.Year,
	TrackHistory: true,
}

func TestExportWritesSnapshotsAndHistory(t *testing.T) {
	y2024 := period.NewYear(2024)
	reader := &readerStub{
		rows: []domain.Snapshot{{
			Table:   customerYearly.Name,
			Period:  y2024,
			Key:     domain.Key{"c1"},
			Labels:  domain.Labels{"Ada"},
			Metrics: domain.Metrics{Quantity: 3, Amount: 1250, Discount: 50, Transactions: 2},
		}},
		history: []domain.HistoryRow{
			{Table: customerYearly.Name, Period: "2024", Key: domain.Key{"c1"}, Labels: domain.Labels{"Ada"}, Ordinal: 1, Entry: domain.HistoryEntry{Period: "2023", TotalAmount: 500}},
			{Table: customerYearly.Name, Period: "2024", Key: domain.Key{"c1"}, Labels: domain.Labels{"Ada"}, Ordinal: 2, Entry: domain.HistoryEntry{Period: "2024", TotalAmount: 750}},
		},
	}
	exporter := New(Params{Log: zap.NewNop(), Reader: reader, Catalogue: catalogueStub{customerYearly}})

	var buf bytes.Buffer
	n, err := exporter.Export(context.Background(), "customer_yearly", "2024", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{snapshotSheet, historySheet}, f.GetSheetList())

	rows, err := f.GetRows(snapshotSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"period", "customer_id", "customer_name", "quantity", "amount", "discount", "transactions"}, rows[0])
	assert.Equal(t, []string{"2024", "c1", "Ada", "3", "12.5", "0.5", "2"}, rows[1])

	history, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2023", history[1][4])
	assert.Equal(t, "7.5", history[2][6])
}

func TestExportErrors(t *testing.T) {
	exporter := New(Params{
		Log:       zap.NewNop(),
		Reader:    &readerStub{err: domain.ErrNotCommitted},
		Catalogue: catalogueStub{customerYearly},
	})

	var buf bytes.Buffer
	_, err := exporter.Export(context.Background(), "missing", "2024", &buf)
	assert.True(t, errors.Is(err, domain.ErrUnknownTable))

	_, err = exporter.Export(context.Background(), "customer_yearly", "2024", &buf)
	assert.True(t, errors.Is(err, domain.ErrNotCommitted))
	assert.Zero(t, buf.Len())
}

func TestFileName(t *testing.T) {
	name := FileName("Category Daily", "2024-01-05")
	assert.True(t, strings.HasSuffix(name, ".xlsx"))
	assert.Equal(t, "category-daily-2024-01-05.xlsx", name)
}

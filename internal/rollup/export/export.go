package export

import (
	"context"
	"fmt"
	"io"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/xuri/excelize/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	snapshotSheet = "snapshots"
	historySheet  = "history"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Reader    domain.ReadService
	Catalogue domain.Catalogue
}

// Exporter writes one committed period of a rollup table as a workbook.
type Exporter struct {
	log       *zap.Logger
	reader    domain.ReadService
	catalogue domain.Catalogue
}

func New(p Params) *Exporter {
	return &Exporter{
		log:       p.Log.Named("rollup.export"),
		reader:    p.Reader,
		catalogue: p.Catalogue,
	}
}

// FileName is the workbook name for a table period, e.g. category-daily-2024-01-05.xlsx.
func FileName(table, period string) string {
	return slug.Make(table+" "+period) + ".xlsx"
}

// Export writes the period's snapshot rows, and the unnested history when the
// table tracks it, to w. It returns the number of snapshot rows written.
func (e *Exporter) Export(ctx context.Context, tableName, period string, w io.Writer) (int, error) {
	table, err := e.catalogue.Table(tableName)
	if err != nil {
		return 0, err
	}
	rows, err := e.reader.Snapshots(ctx, domain.SnapshotQuery{Table: table.Name, Period: period})
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), snapshotSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSnapshots(f, table, rows); err != nil {
		return 0, err
	}

	if table.TrackHistory {
		history, err := e.reader.History(ctx, table.Name, period)
		if err != nil {
			return 0, err
		}
		if _, err := f.NewSheet(historySheet); err != nil {
			return 0, fmt.Errorf("add history sheet: %w", err)
		}
		if err := writeHistory(f, table, history); err != nil {
			return 0, err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	e.log.Info("rollup period exported",
		zap.String("rollup_table", table.Name),
		zap.String("period", period),
		zap.Int("rows", len(rows)),
	)
	return len(rows), nil
}

func dimensionHeader(table domain.Table) []any {
	header := []any{"period"}
	for _, dim := range table.Dimensions {
		header = append(header, string(dim)+"_id", string(dim)+"_name")
	}
	return header
}

func dimensionCells(table domain.Table, key domain.Key, labels domain.Labels) []any {
	cells := make([]any, 0, 2*len(table.Dimensions))
	for i := range table.Dimensions {
		var id, label string
		if i < len(key) {
			id = key[i]
		}
		if i < len(labels) {
			label = labels[i]
		}
		cells = append(cells, id, label)
	}
	return cells
}

func writeSnapshots(f *excelize.File, table domain.Table, rows []domain.Snapshot) error {
	header := append(dimensionHeader(table), "quantity", "amount", "discount", "transactions")
	if err := f.SetSheetRow(snapshotSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		values := []any{row.Period.String()}
		values = append(values, dimensionCells(table, row.Key, row.Labels)...)
		values = append(values,
			row.Metrics.Quantity,
			money(row.Metrics.Amount),
			money(row.Metrics.Discount),
			row.Metrics.Transactions,
		)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(snapshotSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeHistory(f *excelize.File, table domain.Table, rows []domain.HistoryRow) error {
	header := append(dimensionHeader(table), "ordinal", "history_period", "total_quantity", "total_amount", "total_discount")
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for i, row := range rows {
		values := []any{row.Period}
		values = append(values, dimensionCells(table, row.Key, row.Labels)...)
		values = append(values,
			row.Ordinal,
			row.Entry.Period,
			row.Entry.TotalQuantity,
			money(row.Entry.TotalAmount),
			money(row.Entry.TotalDiscount),
		)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return fmt.Errorf("write history row %d: %w", i+2, err)
		}
	}
	return nil
}

func money(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}

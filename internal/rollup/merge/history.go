package merge

import (
	"iter"
	"slices"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
)

// AppendHistory returns the history array for p. With activity a new entry
// is appended after the previous ones; without activity the previous array
// is carried forward as is. The result never shares a backing array with
// previous.
func AppendHistory(previous []domain.HistoryEntry, delta *domain.Delta, p period.Period) []domain.HistoryEntry {
	if delta == nil {
		return slices.Clone(previous)
	}
	out := make([]domain.HistoryEntry, len(previous), len(previous)+1)
	copy(out, previous)
	return append(out, domain.HistoryEntry{
		Period:        p.String(),
		TotalDiscount: delta.Metrics.Discount,
		TotalAmount:   delta.Metrics.Amount,
		TotalQuantity: delta.Metrics.Quantity,
	})
}

// Unnest expands each row's history into one HistoryRow per entry, in row
// order then array order. The sequence can be ranged over more than once.
func Unnest(rows []domain.Snapshot) iter.Seq[domain.HistoryRow] {
	return func(yield func(domain.HistoryRow) bool) {
		for _, row := range rows {
			for i, entry := range row.History {
				if !yield(domain.HistoryRow{
					Table:   row.Table,
					Period:  row.Period.String(),
					Key:     row.Key,
					Labels:  row.Labels,
					Ordinal: i + 1,
					Entry:   entry,
				}) {
					return
				}
			}
		}
	}
}

// Package merge combines the accumulated state of the previous period with
// the activity of the current one. Everything here is pure: no I/O, no
// clock, inputs are never mutated.
package merge

import (
	"fmt"
	"slices"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
)

// Result is the merged snapshot set for one period.
type Result struct {
	Rows           []domain.Snapshot
	LabelConflicts []domain.LabelConflict
}

// Merge full-outer-joins previous (the state as of p-1) with delta (the
// activity during p) on the table's key tuple. Every output row is stamped
// with p. Metrics add; labels come from the delta when it carries one.
func Merge(table domain.Table, p period.Period, previous []domain.Snapshot, delta []domain.Delta) (Result, error) {
	if p.Granularity() != table.Granularity {
		return Result{}, fmt.Errorf("%w: table %s is %s, period %s", domain.ErrGranularityMismatch, table.Name, table.Granularity, p)
	}

	prevByKey := make(map[string]*domain.Snapshot, len(previous))
	for i := range previous {
		row := &previous[i]
		if len(row.Key) != table.Arity() {
			return Result{}, fmt.Errorf("%w: previous row %s has %d values, table %s expects %d", domain.ErrKeyArity, row.Key, len(row.Key), table.Name, table.Arity())
		}
		id := row.Key.String()
		if _, ok := prevByKey[id]; ok {
			return Result{}, fmt.Errorf("%w: previous row %s", domain.ErrDuplicateKey, id)
		}
		prevByKey[id] = row
	}

	deltaByKey := make(map[string]*domain.Delta, len(delta))
	for i := range delta {
		row := &delta[i]
		if len(row.Key) != table.Arity() {
			return Result{}, fmt.Errorf("%w: delta row %s has %d values, table %s expects %d", domain.ErrKeyArity, row.Key, len(row.Key), table.Name, table.Arity())
		}
		id := row.Key.String()
		if _, ok := deltaByKey[id]; ok {
			return Result{}, fmt.Errorf("%w: delta row %s", domain.ErrDuplicateKey, id)
		}
		deltaByKey[id] = row
	}

	keys := make([]domain.Key, 0, len(prevByKey)+len(deltaByKey))
	for _, row := range prevByKey {
		keys = append(keys, row.Key)
	}
	for id, row := range deltaByKey {
		if _, ok := prevByKey[id]; !ok {
			keys = append(keys, row.Key)
		}
	}
	slices.SortFunc(keys, domain.CompareKeys)

	result := Result{Rows: make([]domain.Snapshot, 0, len(keys))}
	for _, key := range keys {
		id := key.String()
		prev := prevByKey[id]
		cur := deltaByKey[id]

		row := domain.Snapshot{
			Table:  table.Name,
			Period: p,
			Key:    slices.Clone(key),
		}

		var prevLabels, curLabels domain.Labels
		if prev != nil {
			row.Metrics = row.Metrics.Add(prev.Metrics)
			prevLabels = prev.Labels
		}
		if cur != nil {
			row.Metrics = row.Metrics.Add(cur.Metrics)
			curLabels = cur.Labels
		}

		labels, conflicts := resolveLabels(table, key, prevLabels, curLabels)
		row.Labels = labels
		result.LabelConflicts = append(result.LabelConflicts, conflicts...)

		if table.TrackHistory {
			var history []domain.HistoryEntry
			if prev != nil {
				history = prev.History
			}
			row.History = AppendHistory(history, cur, p)
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// resolveLabels picks, per dimension, the delta's label when non-empty and
// the previous one otherwise. Differing non-empty labels are conflicts.
func resolveLabels(table domain.Table, key domain.Key, prev, cur domain.Labels) (domain.Labels, []domain.LabelConflict) {
	out := make(domain.Labels, table.Arity())
	var conflicts []domain.LabelConflict
	for i := range out {
		p := labelAt(prev, i)
		c := labelAt(cur, i)
		switch {
		case c != "":
			out[i] = c
		default:
			out[i] = p
		}
		if p != "" && c != "" && p != c {
			conflicts = append(conflicts, domain.LabelConflict{
				Key:       slices.Clone(key),
				Dimension: table.Dimensions[i],
				Previous:  p,
				Current:   c,
			})
		}
	}
	return out, conflicts
}

func labelAt(labels domain.Labels, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return ""
}

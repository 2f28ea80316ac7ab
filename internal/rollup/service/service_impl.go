package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/smallbiznis/retailsales/internal/rollup/merge"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Store     domain.SnapshotStore
	Catalogue domain.Catalogue
}

type Service struct {
	log       *zap.Logger
	store     domain.SnapshotStore
	catalogue domain.Catalogue
}

func New(p Params) domain.ReadService {
	return &Service{
		log:       p.Log.Named("rollup.service"),
		store:     p.Store,
		catalogue: p.Catalogue,
	}
}

func (s *Service) Tables(ctx context.Context) ([]domain.TableStatus, error) {
	tables := s.catalogue.Tables()
	out := make([]domain.TableStatus, 0, len(tables))
	for _, table := range tables {
		status := domain.TableStatus{Table: table}
		first, err := s.store.FirstCommitted(ctx, table)
		if err != nil {
			return nil, err
		}
		if first != nil {
			status.FirstCommitted = first.String()
		}
		last, err := s.store.LastCommitted(ctx, table)
		if err != nil {
			return nil, err
		}
		if last != nil {
			status.LastCommitted = last.String()
		}
		out = append(out, status)
	}
	return out, nil
}

// Snapshots returns the rows of one committed period, or of every committed
// period in an inclusive range.
func (s *Service) Snapshots(ctx context.Context, q domain.SnapshotQuery) ([]domain.Snapshot, error) {
	table, err := s.catalogue.Table(q.Table)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(q.Period) != "" {
		p, err := period.Parse(table.Granularity, q.Period)
		if err != nil {
			return nil, err
		}
		return s.loadCommitted(ctx, table, p)
	}

	from, to, err := parseRange(table, q.From, q.To)
	if err != nil {
		return nil, err
	}
	return s.store.ListRange(ctx, table, from, to)
}

// History unnests the history arrays of a committed period into one row per
// entry.
func (s *Service) History(ctx context.Context, tableName, raw string) ([]domain.HistoryRow, error) {
	table, err := s.catalogue.Table(tableName)
	if err != nil {
		return nil, err
	}
	if !table.TrackHistory {
		return nil, fmt.Errorf("%w: %s does not track history", domain.ErrInvalidTable, table.Name)
	}
	p, err := period.Parse(table.Granularity, raw)
	if err != nil {
		return nil, err
	}

	rows, err := s.loadCommitted(ctx, table, p)
	if err != nil {
		return nil, err
	}
	return slices.Collect(merge.Unnest(rows)), nil
}

func (s *Service) Commits(ctx context.Context, tableName, rawFrom, rawTo string) ([]domain.PeriodCommit, error) {
	table, err := s.catalogue.Table(tableName)
	if err != nil {
		return nil, err
	}
	from, to, err := parseRange(table, rawFrom, rawTo)
	if err != nil {
		return nil, err
	}
	return s.store.ListCommits(ctx, table, from, to)
}

func (s *Service) loadCommitted(ctx context.Context, table domain.Table, p period.Period) ([]domain.Snapshot, error) {
	committed, err := s.store.IsCommitted(ctx, table, p)
	if err != nil {
		return nil, err
	}
	if !committed {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotCommitted, table.Name, p)
	}
	return s.store.LoadPeriod(ctx, table, p)
}

func parseRange(table domain.Table, rawFrom, rawTo string) (period.Period, period.Period, error) {
	from, err := period.Parse(table.Granularity, rawFrom)
	if err != nil {
		return period.Period{}, period.Period{}, err
	}
	to, err := period.Parse(table.Granularity, rawTo)
	if err != nil {
		return period.Period{}, period.Period{}, err
	}
	if to.Before(from) {
		return period.Period{}, period.Period{}, fmt.Errorf("%w: %s before %s", domain.ErrPeriodsNotAscending, to, from)
	}
	return from, to, nil
}

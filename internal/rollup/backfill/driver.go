package backfill

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/retailsales/internal/config"
	obscontext "github.com/smallbiznis/retailsales/internal/observability/context"
	"github.com/smallbiznis/retailsales/internal/observability/logger"
	"github.com/smallbiznis/retailsales/internal/observability/metrics"
	obstracing "github.com/smallbiznis/retailsales/internal/observability/tracing"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/smallbiznis/retailsales/internal/rollup/merge"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 4

// Request selects tables and a closed time range. Each table expands the
// range into periods of its own granularity. No tables means every enabled
// table.
type Request struct {
	Tables []string
	From   time.Time
	To     time.Time
}

type DriverParams struct {
	fx.In

	Log       *zap.Logger
	Store     domain.SnapshotStore
	Source    domain.DeltaSource
	Catalogue domain.Catalogue
	Holder    *config.RollupConfigHolder `optional:"true"`
	Metrics   *metrics.RollupMetrics     `optional:"true"`
}

// Driver walks periods in chronological order, merging each period's delta
// onto the previous period's snapshot and committing the result.
type Driver struct {
	log       *zap.Logger
	store     domain.SnapshotStore
	source    domain.DeltaSource
	catalogue domain.Catalogue
	holder    *config.RollupConfigHolder
	metrics   *metrics.RollupMetrics
}

func NewDriver(p DriverParams) *Driver {
	m := p.Metrics
	if m == nil {
		m = metrics.Rollup()
	}
	return &Driver{
		log:       p.Log.Named("rollup.backfill"),
		store:     p.Store,
		source:    p.Source,
		catalogue: p.Catalogue,
		holder:    p.Holder,
		metrics:   m,
	}
}

// Run processes the requested range for every selected table. Tables run
// concurrently; a fatal error stops only the table it occurred in and all
// such errors are joined in the returned error.
func (d *Driver) Run(ctx context.Context, req Request) (domain.Report, error) {
	if req.To.Before(req.From) {
		return domain.Report{}, fmt.Errorf("%w: to %s is before from %s", domain.ErrPeriodsNotAscending, req.To.Format(time.DateOnly), req.From.Format(time.DateOnly))
	}
	tables, err := d.selectTables(req.Tables)
	if err != nil {
		return domain.Report{}, err
	}

	plans := make(map[string][]period.Period, len(tables))
	for _, table := range tables {
		periods, err := period.Range(table.Granularity, req.From, req.To)
		if err != nil {
			return domain.Report{}, fmt.Errorf("table %s: %w", table.Name, err)
		}
		plans[table.Name] = periods
	}

	return d.runPlans(ctx, newRunID(), tables, plans)
}

func (d *Driver) runPlans(ctx context.Context, runID string, tables []domain.Table, plans map[string][]period.Period) (domain.Report, error) {
	report := domain.Report{RunID: runID}
	ctx = obscontext.WithRunID(ctx, runID)

	var (
		mu      sync.Mutex
		results = make(map[string][]domain.PeriodResult, len(tables))
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(d.parallelism())
	for _, table := range tables {
		g.Go(func() error {
			res, err := d.runPeriods(ctx, runID, table, plans[table.Name])
			mu.Lock()
			defer mu.Unlock()
			results[table.Name] = res
			if err != nil {
				errs = append(errs, fmt.Errorf("table %s: %w", table.Name, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, table := range tables {
		report.Results = append(report.Results, results[table.Name]...)
	}
	d.log.Info("backfill run finished",
		zap.String("run_id", runID),
		zap.Int("tables", len(tables)),
		zap.Int("committed", report.Count(domain.PeriodCommitted)),
		zap.Int("skipped", report.Count(domain.PeriodSkipped)),
		zap.Int("failed_tables", len(errs)),
	)
	return report, errors.Join(errs...)
}

// RunPeriods processes periods of one table in order. The periods must be
// strictly ascending and of the table's granularity. Already committed
// periods are reported as skipped; a gap aborts with ErrOutOfOrderPeriod and
// leaves earlier periods of this call committed.
func (d *Driver) RunPeriods(ctx context.Context, table domain.Table, periods []period.Period) ([]domain.PeriodResult, error) {
	runID := obscontext.RunIDFromContext(ctx)
	if runID == "" {
		runID = newRunID()
		ctx = obscontext.WithRunID(ctx, runID)
	}
	return d.runPeriods(ctx, runID, table, periods)
}

func (d *Driver) runPeriods(ctx context.Context, runID string, table domain.Table, periods []period.Period) ([]domain.PeriodResult, error) {
	ctx = obscontext.WithTable(ctx, table.Name)
	log := logger.WithContext(ctx, d.log)

	if err := validatePeriods(table, periods); err != nil {
		d.metrics.IncRunError(table.Name, metrics.RunErrorInvalidInput)
		return nil, err
	}
	if len(periods) == 0 {
		return nil, nil
	}

	last, err := d.store.LastCommitted(ctx, table)
	if err != nil {
		d.metrics.IncRunError(table.Name, metrics.ClassifyDBReason(err))
		return nil, err
	}

	seed := table.SeedPeriod
	if seed.IsZero() {
		seed = periods[0]
	}

	results := make([]domain.PeriodResult, 0, len(periods))
	for _, p := range periods {
		if err := ctx.Err(); err != nil {
			d.metrics.IncRunError(table.Name, metrics.RunErrorDeadlineExceeded)
			return results, err
		}

		var predecessor *period.Period
		switch {
		case last == nil:
			if !p.Equal(seed) {
				d.metrics.IncRunError(table.Name, metrics.RunErrorOutOfOrder)
				return results, fmt.Errorf("%w: %s has no commits, %s is not the seed period %s", domain.ErrOutOfOrderPeriod, table.Name, p, seed)
			}
		case !p.After(*last):
			committed, err := d.store.IsCommitted(ctx, table, p)
			if err != nil {
				d.metrics.IncRunError(table.Name, metrics.ClassifyDBReason(err))
				return results, err
			}
			if !committed {
				d.metrics.IncRunError(table.Name, metrics.RunErrorOutOfOrder)
				return results, fmt.Errorf("%w: %s %s precedes the committed chain", domain.ErrOutOfOrderPeriod, table.Name, p)
			}
			log.Info("period already committed, skipping", zap.String("period", p.String()))
			d.metrics.IncSkipped(table.Name, metrics.SkipReasonAlreadyCommitted)
			results = append(results, domain.PeriodResult{Table: table.Name, Period: p, Status: domain.PeriodSkipped})
			continue
		default:
			if !p.Equal(last.Next()) {
				d.metrics.IncRunError(table.Name, metrics.RunErrorOutOfOrder)
				return results, fmt.Errorf("%w: %s last committed %s, got %s", domain.ErrOutOfOrderPeriod, table.Name, last, p)
			}
			prev := *last
			predecessor = &prev
		}

		res, err := d.processPeriod(ctx, runID, table, p, predecessor)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicatePeriod) {
				log.Info("period committed concurrently, skipping", zap.String("period", p.String()))
				d.metrics.IncSkipped(table.Name, metrics.SkipReasonCommitConflict)
				results = append(results, domain.PeriodResult{Table: table.Name, Period: p, Status: domain.PeriodSkipped})
				committed := p
				last = &committed
				continue
			}
			if errors.Is(err, domain.ErrOutOfOrderPeriod) {
				d.metrics.IncRunError(table.Name, metrics.RunErrorOutOfOrder)
			} else {
				d.metrics.IncRunError(table.Name, metrics.ClassifyDBReason(err))
			}
			return results, err
		}

		results = append(results, res)
		committed := p
		last = &committed
	}
	return results, nil
}

// processPeriod loads the predecessor's snapshot, merges this period's delta
// onto it and commits the outcome atomically.
func (d *Driver) processPeriod(ctx context.Context, runID string, table domain.Table, p period.Period, predecessor *period.Period) (domain.PeriodResult, error) {
	ctx, span := otel.Tracer("retailsales/rollup.backfill").Start(ctx, "rollup.period")
	defer span.End()
	span.SetAttributes(
		attribute.String("rollup.table", table.Name),
		attribute.String("rollup.period", p.String()),
		attribute.String("rollup.run_id", runID),
	)

	log := logger.WithContext(ctx, d.log)
	started := time.Now()

	var previous []domain.Snapshot
	if predecessor != nil {
		var err error
		previous, err = d.store.LoadPeriod(ctx, table, *predecessor)
		if err != nil {
			obstracing.RecordError(span, err)
			return domain.PeriodResult{}, fmt.Errorf("load %s %s: %w", table.Name, predecessor, err)
		}
	}

	delta, err := d.source.Extract(ctx, table, p)
	if err != nil {
		obstracing.RecordError(span, err)
		return domain.PeriodResult{}, err
	}

	merged, err := merge.Merge(table, p, previous, delta)
	if err != nil {
		obstracing.RecordError(span, err)
		return domain.PeriodResult{}, fmt.Errorf("merge %s %s: %w", table.Name, p, err)
	}
	for _, conflict := range merged.LabelConflicts {
		log.Warn("label changed between periods",
			zap.String("period", p.String()),
			zap.String("key", conflict.Key.String()),
			zap.String("dimension", string(conflict.Dimension)),
			zap.String("previous", conflict.Previous),
			zap.String("current", conflict.Current),
		)
	}
	d.metrics.AddLabelConflicts(table.Name, len(merged.LabelConflicts))

	commit, err := d.store.Commit(ctx, domain.CommitRequest{
		Table:       table,
		Period:      p,
		Predecessor: predecessor,
		RunID:       runID,
		Rows:        merged.Rows,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicatePeriod) {
			obstracing.RecordError(span, err)
		}
		return domain.PeriodResult{}, err
	}

	elapsed := time.Since(started)
	d.metrics.ObserveCommit(table.Name, p.Start(), commit.RowCount, elapsed)
	span.SetAttributes(attribute.Int("rollup.rows", commit.RowCount))
	log.Info("period committed",
		zap.String("period", p.String()),
		zap.Int("delta_keys", len(delta)),
		zap.Int("rows", commit.RowCount),
		zap.Int("label_conflicts", len(merged.LabelConflicts)),
		zap.Duration("elapsed", elapsed),
	)

	return domain.PeriodResult{
		Table:          table.Name,
		Period:         p,
		Status:         domain.PeriodCommitted,
		Rows:           commit.RowCount,
		LabelConflicts: len(merged.LabelConflicts),
	}, nil
}

func (d *Driver) selectTables(names []string) ([]domain.Table, error) {
	if len(names) == 0 {
		var tables []domain.Table
		for _, table := range d.catalogue.Tables() {
			if !table.Disabled {
				tables = append(tables, table)
			}
		}
		return tables, nil
	}

	tables := make([]domain.Table, 0, len(names))
	for _, name := range names {
		table, err := d.catalogue.Table(name)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(tables, func(t domain.Table) bool { return t.Name == table.Name }) {
			continue
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (d *Driver) parallelism() int {
	if d.holder != nil {
		if n := d.holder.Get().Parallelism; n > 0 {
			return n
		}
	}
	return defaultParallelism
}

func validatePeriods(table domain.Table, periods []period.Period) error {
	for i, p := range periods {
		if p.Granularity() != table.Granularity {
			return fmt.Errorf("%w: table %s is %s, period %s", domain.ErrGranularityMismatch, table.Name, table.Granularity, p)
		}
		if i > 0 && !p.After(periods[i-1]) {
			return fmt.Errorf("%w: %s after %s", domain.ErrPeriodsNotAscending, p, periods[i-1])
		}
	}
	return nil
}

func newRunID() string {
	return ulid.Make().String()
}

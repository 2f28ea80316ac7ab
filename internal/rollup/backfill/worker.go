package backfill

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/retailsales/internal/clock"
	"github.com/smallbiznis/retailsales/internal/observability/push"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AddressSyncer applies the address feed derived from facts in [from, to).
type AddressSyncer interface {
	SyncFromFacts(ctx context.Context, from, to time.Time) (scddomain.FeedResult, error)
}

type WorkerParams struct {
	fx.In

	Log      *zap.Logger
	Driver   *Driver
	Store    domain.SnapshotStore
	Clock    clock.Clock
	Config   Config              `optional:"true"`
	Syncer   AddressSyncer       `optional:"true"`
	Pusher   push.Pusher         `optional:"true"`
	Gatherer prometheus.Gatherer `optional:"true"`
}

// Worker keeps every enabled table caught up to the latest complete period.
type Worker struct {
	log      *zap.Logger
	driver   *Driver
	store    domain.SnapshotStore
	clock    clock.Clock
	cfg      Config
	syncer   AddressSyncer
	pusher   push.Pusher
	gatherer prometheus.Gatherer
}

func NewWorker(p WorkerParams) *Worker {
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Worker{
		log:      p.Log.Named("rollup.worker"),
		driver:   p.Driver,
		store:    p.Store,
		clock:    p.Clock,
		cfg:      p.Config.withDefaults(),
		syncer:   p.Syncer,
		pusher:   p.Pusher,
		gatherer: gatherer,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error("rollup catch-up run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce advances each enabled table from its last committed period up to
// the latest complete one, at most MaxPeriodsPerRun periods per table.
// Tables with no commits start at their seed period, or wait when none is
// configured.
func (w *Worker) RunOnce(parentCtx context.Context) (domain.Report, error) {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	now := w.clock.Now()
	var (
		tables []domain.Table
		plans  = make(map[string][]period.Period)
	)
	for _, table := range w.driver.catalogue.Tables() {
		if table.Disabled {
			continue
		}
		periods, err := w.pending(ctx, table, now)
		if err != nil {
			return domain.Report{}, err
		}
		if len(periods) == 0 {
			continue
		}
		tables = append(tables, table)
		plans[table.Name] = periods
	}

	if len(tables) == 0 {
		w.log.Debug("rollup tables up to date")
		return domain.Report{}, nil
	}

	report, runErr := w.driver.runPlans(ctx, newRunID(), tables, plans)
	w.syncAddresses(ctx, report)
	w.push(ctx)
	return report, runErr
}

func (w *Worker) pending(ctx context.Context, table domain.Table, now time.Time) ([]period.Period, error) {
	current, err := period.Containing(table.Granularity, now)
	if err != nil {
		return nil, err
	}
	latest := current.Prev()

	last, err := w.store.LastCommitted(ctx, table)
	if err != nil {
		return nil, err
	}

	var done period.Period
	switch {
	case last != nil:
		done = *last
	case !table.SeedPeriod.IsZero():
		done = table.SeedPeriod.Prev()
	default:
		w.log.Debug("table has no commits and no seed period", zap.String("rollup_table", table.Name))
		return nil, nil
	}

	periods := period.Between(done, latest)
	if len(periods) > w.cfg.MaxPeriodsPerRun {
		periods = periods[:w.cfg.MaxPeriodsPerRun]
	}
	return periods, nil
}

func (w *Worker) syncAddresses(ctx context.Context, report domain.Report) {
	if w.syncer == nil {
		return
	}

	var from, to time.Time
	for _, res := range report.Results {
		if res.Status != domain.PeriodCommitted {
			continue
		}
		if from.IsZero() || res.Period.Start().Before(from) {
			from = res.Period.Start()
		}
		if res.Period.End().After(to) {
			to = res.Period.End()
		}
	}
	if from.IsZero() {
		return
	}

	result, err := w.syncer.SyncFromFacts(ctx, from, to)
	if err != nil {
		w.log.Warn("address sync failed", zap.Error(err))
		return
	}
	w.log.Info("address sync finished",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("changes", result.Changes),
		zap.Int("replaced", result.Replaced),
	)
}

func (w *Worker) push(ctx context.Context) {
	if w.pusher == nil {
		return
	}
	if err := w.pusher.Push(ctx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}

package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/retailsales/internal/clock"
	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"go.uber.org/zap"
)

type syncerStub struct {
	calls    int
	from, to time.Time
}

func (s *syncerStub) SyncFromFacts(ctx context.Context, from, to time.Time) (scddomain.FeedResult, error) {
	s.calls++
	s.from, s.to = from, to
	return scddomain.FeedResult{}, nil
}

type pusherStub struct {
	pushes int
}

func (p *pusherStub) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	p.pushes++
	return nil
}

func TestWorkerCatchesUpToLatestCompletePeriod(t *testing.T) {
	cfg := config.RollupConfig{Parallelism: 2, Tables: []config.TableConfig{
		{Name: "category_daily", Dimensions: []string{"category"}, Granularity: "day", SeedPeriod: "2024-01-01"},
		{Name: "customer_yearly", Dimensions: []string{"customer"}, Granularity: "year", TrackHistory: true},
	}}
	h := newHarness(t, cfg)
	h.sell(t, "t1", "c1", "Electronics", jan1, 1, 100)

	clk := clock.NewFakeClock(time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC))
	syncer := &syncerStub{}
	pusher := &pusherStub{}
	worker := NewWorker(WorkerParams{
		Log:      zap.NewNop(),
		Driver:   h.driver,
		Store:    h.store,
		Clock:    clk,
		Config:   Config{MaxPeriodsPerRun: 3},
		Syncer:   syncer,
		Pusher:   pusher,
		Gatherer: prometheus.NewRegistry(),
	})
	ctx := context.Background()

	report, err := worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := report.Count(domain.PeriodCommitted); got != 3 {
		t.Fatalf("expected 3 periods (capped), got %d", got)
	}
	for _, res := range report.Results {
		if res.Table != "category_daily" {
			t.Fatalf("table without seed must wait, got %+v", res)
		}
	}
	if syncer.calls != 1 || !syncer.from.Equal(jan1) || !syncer.to.Equal(jan1.AddDate(0, 0, 3)) {
		t.Fatalf("unexpected address sync %+v", syncer)
	}
	if pusher.pushes != 1 {
		t.Fatalf("expected one push, got %d", pusher.pushes)
	}

	report, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := report.Count(domain.PeriodCommitted); got != 2 {
		t.Fatalf("expected remaining 2 periods, got %d", got)
	}

	table := h.table(t, "category_daily")
	last, err := h.store.LastCommitted(ctx, table)
	if err != nil {
		t.Fatalf("last committed: %v", err)
	}
	if want := period.NewDay(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)); last == nil || !last.Equal(want) {
		t.Fatalf("expected last committed %s, got %v", want, last)
	}

	report, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("idle run: %v", err)
	}
	if len(report.Results) != 0 {
		t.Fatalf("expected nothing to do, got %+v", report.Results)
	}

	clk.Advance(24 * time.Hour)
	report, err = worker.RunOnce(ctx)
	if err != nil {
		t.Fatalf("next day run: %v", err)
	}
	if got := report.Count(domain.PeriodCommitted); got != 1 {
		t.Fatalf("expected the new day only, got %d", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.PollInterval != DefaultConfig().PollInterval || cfg.MaxPeriodsPerRun != 31 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	cfg = NewConfig(config.Config{Worker: config.WorkerConfig{Enabled: true, PollInterval: time.Second, MaxPeriodsPerRun: 7}})
	if !cfg.Enabled || cfg.PollInterval != time.Second || cfg.MaxPeriodsPerRun != 7 || cfg.RunTimeout <= 0 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SkipReasonAlreadyCommitted = "already_committed"
	SkipReasonCommitConflict   = "commit_conflict"
)

const (
	RunErrorOutOfOrder           = "out_of_order"
	RunErrorDeadlineExceeded     = "deadline_exceeded"
	RunErrorDBLockTimeout        = "db_lock_timeout"
	RunErrorSerializationFailure = "serialization_failure"
	RunErrorUniqueViolation      = "unique_violation"
	RunErrorInvalidInput         = "invalid_input"
	RunErrorUnknown              = "unknown"
)

const (
	SCDOutcomeOpened   = "opened"
	SCDOutcomeReplaced = "replaced"
	SCDOutcomeNoop     = "noop"
	SCDOutcomeRejected = "rejected"
)

// RollupMetrics tracks backfill progress and data-quality signals.
type RollupMetrics struct {
	periodsCommitted *prometheus.CounterVec
	periodsSkipped   *prometheus.CounterVec
	runErrors        *prometheus.CounterVec
	labelConflicts   *prometheus.CounterVec
	rowsWritten      *prometheus.CounterVec
	periodDuration   *prometheus.HistogramVec
	lastCommitted    *prometheus.GaugeVec
	scdChanges       *prometheus.CounterVec
}

var (
	rollupMetricsOnce sync.Once
	rollupMetrics     *RollupMetrics
)

// Rollup returns the process-wide rollup metrics registered on the default registry.
func Rollup() *RollupMetrics {
	return RollupWithConfig(Config{})
}

func RollupWithConfig(cfg Config) *RollupMetrics {
	rollupMetricsOnce.Do(func() {
		rollupMetrics = NewRollupMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return rollupMetrics
}

// ResetRollupMetricsForTest resets the rollup metrics singleton for tests.
func ResetRollupMetricsForTest() {
	rollupMetricsOnce = sync.Once{}
	rollupMetrics = nil
}

// NewRollupMetrics registers a fresh set of collectors on registerer.
func NewRollupMetrics(registerer prometheus.Registerer, cfg Config) *RollupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := prometheus.Labels(cfg.constLabels())

	m := &RollupMetrics{
		periodsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_rollup_periods_committed_total",
			Help:        "Rollup periods committed by table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		periodsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_rollup_periods_skipped_total",
			Help:        "Rollup periods skipped because they were already committed.",
			ConstLabels: constLabels,
		}, []string{"table", "reason"}),
		runErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_rollup_run_errors_total",
			Help:        "Rollup runs aborted for a table, by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"table", "reason"}),
		labelConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_rollup_label_conflicts_total",
			Help:        "Keys whose descriptive label changed between consecutive periods.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_rollup_rows_written_total",
			Help:        "Snapshot rows written by table.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		periodDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "retailsales_rollup_period_duration_seconds",
			Help:        "Time to extract, merge and commit one period.",
			Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"table"}),
		lastCommitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "retailsales_rollup_last_committed_period_seconds",
			Help:        "Start of the latest committed period as a unix timestamp.",
			ConstLabels: constLabels,
		}, []string{"table"}),
		scdChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "retailsales_scd_changes_total",
			Help:        "Customer address changes applied, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}

	registerer.MustRegister(
		m.periodsCommitted,
		m.periodsSkipped,
		m.runErrors,
		m.labelConflicts,
		m.rowsWritten,
		m.periodDuration,
		m.lastCommitted,
		m.scdChanges,
	)
	return m
}

// ObserveCommit records a committed period.
func (m *RollupMetrics) ObserveCommit(table string, periodStart time.Time, rows int, duration time.Duration) {
	if m == nil {
		return
	}
	m.periodsCommitted.WithLabelValues(table).Inc()
	m.rowsWritten.WithLabelValues(table).Add(float64(rows))
	m.periodDuration.WithLabelValues(table).Observe(duration.Seconds())
	m.lastCommitted.WithLabelValues(table).Set(float64(periodStart.Unix()))
}

func (m *RollupMetrics) IncSkipped(table, reason string) {
	if m == nil {
		return
	}
	m.periodsSkipped.WithLabelValues(table, reason).Inc()
}

func (m *RollupMetrics) IncRunError(table, reason string) {
	if m == nil {
		return
	}
	m.runErrors.WithLabelValues(table, reason).Inc()
}

func (m *RollupMetrics) AddLabelConflicts(table string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.labelConflicts.WithLabelValues(table).Add(float64(count))
}

func (m *RollupMetrics) IncSCDChange(outcome string) {
	if m == nil {
		return
	}
	m.scdChanges.WithLabelValues(outcome).Inc()
}

// ClassifyDBReason maps infrastructure failures to a run error reason.
func ClassifyDBReason(err error) string {
	switch {
	case err == nil:
		return RunErrorUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return RunErrorDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return RunErrorDBLockTimeout
	case hasPGCode(err, "40001"):
		return RunErrorSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return RunErrorUniqueViolation
	default:
		return RunErrorUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	pkgdb "github.com/smallbiznis/retailsales/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const snapshotBatchSize = 500

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

// Store keeps one row per (table, key, period) in rollup_snapshots and one
// ledger row per committed (table, period) in rollup_periods.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) *Store {
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("rollup.store"),
		genID: p.GenID,
	}
}

func NewSnapshotStore(s *Store) domain.SnapshotStore { return s }

func (s *Store) LoadPeriod(ctx context.Context, table domain.Table, p period.Period) ([]domain.Snapshot, error) {
	var records []domain.SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("rollup_table = ? AND period = ?", table.Name, p.String()).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toSnapshots(table, records)
}

func (s *Store) ListRange(ctx context.Context, table domain.Table, from, to period.Period) ([]domain.Snapshot, error) {
	var records []domain.SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("rollup_table = ? AND period_start >= ? AND period_start <= ?", table.Name, from.Start(), to.Start()).
		Order("period_start ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toSnapshots(table, records)
}

func (s *Store) LastCommitted(ctx context.Context, table domain.Table) (*period.Period, error) {
	return s.boundaryCommit(ctx, table, "period_start DESC")
}

func (s *Store) FirstCommitted(ctx context.Context, table domain.Table) (*period.Period, error) {
	return s.boundaryCommit(ctx, table, "period_start ASC")
}

func (s *Store) boundaryCommit(ctx context.Context, table domain.Table, order string) (*period.Period, error) {
	var commit domain.PeriodCommit
	err := s.db.WithContext(ctx).
		Where("rollup_table = ?", table.Name).
		Order(order).
		Limit(1).
		Find(&commit).Error
	if err != nil {
		return nil, err
	}
	if commit.ID == 0 {
		return nil, nil
	}
	p, err := period.Parse(table.Granularity, commit.Period)
	if err != nil {
		return nil, fmt.Errorf("ledger row %s/%s: %w", table.Name, commit.Period, err)
	}
	return &p, nil
}

func (s *Store) IsCommitted(ctx context.Context, table domain.Table, p period.Period) (bool, error) {
	return isCommitted(s.db.WithContext(ctx), table.Name, p)
}

func (s *Store) ListCommits(ctx context.Context, table domain.Table, from, to period.Period) ([]domain.PeriodCommit, error) {
	var commits []domain.PeriodCommit
	err := s.db.WithContext(ctx).
		Where("rollup_table = ? AND period_start >= ? AND period_start <= ?", table.Name, from.Start(), to.Start()).
		Order("period_start ASC").
		Find(&commits).Error
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// Commit writes the period's rows and its ledger row in one transaction.
// The ledger insert goes first so that the unique index decides between two
// concurrent writers of the same period.
func (s *Store) Commit(ctx context.Context, req domain.CommitRequest) (domain.PeriodCommit, error) {
	table, p := req.Table, req.Period
	if p.Granularity() != table.Granularity {
		return domain.PeriodCommit{}, fmt.Errorf("%w: table %s is %s, period %s", domain.ErrGranularityMismatch, table.Name, table.Granularity, p)
	}
	for _, row := range req.Rows {
		if !row.Period.Equal(p) {
			return domain.PeriodCommit{}, fmt.Errorf("%w: row %s stamped %s, committing %s", domain.ErrGranularityMismatch, row.Key, row.Period, p)
		}
	}

	records, err := s.toRecords(table, p, req.Rows)
	if err != nil {
		return domain.PeriodCommit{}, err
	}

	now := time.Now().UTC()
	commit := domain.PeriodCommit{
		ID:          s.genID.Generate(),
		RollupTable: table.Name,
		Period:      p.String(),
		Granularity: string(table.Granularity),
		PeriodStart: p.Start(),
		RowCount:    len(records),
		RunID:       req.RunID,
		CommittedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockChain(tx, table.Name, now); err != nil {
			return err
		}
		if err := tx.Create(&commit).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %s %s", domain.ErrDuplicatePeriod, table.Name, p)
			}
			return err
		}

		if err := checkChain(tx, table, p, req.Predecessor); err != nil {
			return err
		}

		if len(records) == 0 {
			return nil
		}
		for i := range records {
			records[i].CreatedAt = now
		}
		if err := tx.CreateInBatches(records, snapshotBatchSize).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %s %s rows", domain.ErrDuplicatePeriod, table.Name, p)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.PeriodCommit{}, err
	}
	return commit, nil
}

// lockChain creates the table's chain head on first use and holds a row lock
// on it until the transaction ends. Concurrent seeds for different periods
// queue here, and the later one sees the earlier one's ledger row.
func lockChain(tx *gorm.DB, table string, now time.Time) error {
	head := domain.ChainHead{RollupTable: table, CreatedAt: now}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&head).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("rollup_table = ?", table).
		Take(&head).Error
}

// checkChain runs inside the commit transaction, after this period's ledger
// row is in place.
func checkChain(tx *gorm.DB, table domain.Table, p period.Period, predecessor *period.Period) error {
	if predecessor != nil {
		if !predecessor.Next().Equal(p) {
			return fmt.Errorf("%w: %s predecessor %s does not precede %s", domain.ErrOutOfOrderPeriod, table.Name, predecessor, p)
		}
		var prev domain.PeriodCommit
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
			Where("rollup_table = ? AND period = ?", table.Name, predecessor.String()).
			Limit(1).
			Find(&prev).Error
		if err != nil {
			return err
		}
		if prev.ID == 0 {
			return fmt.Errorf("%w: %s %s requires %s", domain.ErrOutOfOrderPeriod, table.Name, p, predecessor)
		}
	} else {
		var others int64
		err := tx.Model(&domain.PeriodCommit{}).
			Where("rollup_table = ? AND period <> ?", table.Name, p.String()).
			Count(&others).Error
		if err != nil {
			return err
		}
		if others > 0 {
			return fmt.Errorf("%w: %s seed %s but table already has commits", domain.ErrOutOfOrderPeriod, table.Name, p)
		}
	}

	var later int64
	err := tx.Model(&domain.PeriodCommit{}).
		Where("rollup_table = ? AND period_start > ?", table.Name, p.Start()).
		Count(&later).Error
	if err != nil {
		return err
	}
	if later > 0 {
		return fmt.Errorf("%w: %s has periods after %s", domain.ErrOutOfOrderPeriod, table.Name, p)
	}
	return nil
}

func isCommitted(db *gorm.DB, table string, p period.Period) (bool, error) {
	var count int64
	err := db.Model(&domain.PeriodCommit{}).
		Where("rollup_table = ? AND period = ?", table, p.String()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) toRecords(table domain.Table, p period.Period, rows []domain.Snapshot) ([]domain.SnapshotRecord, error) {
	records := make([]domain.SnapshotRecord, 0, len(rows))
	for _, row := range rows {
		if len(row.Key) != table.Arity() {
			return nil, fmt.Errorf("%w: row %s for table %s", domain.ErrKeyArity, row.Key, table.Name)
		}
		labels, err := json.Marshal(row.Labels)
		if err != nil {
			return nil, err
		}
		var history datatypes.JSON
		if table.TrackHistory {
			raw, err := json.Marshal(row.History)
			if err != nil {
				return nil, err
			}
			history = datatypes.JSON(raw)
		}
		records = append(records, domain.SnapshotRecord{
			ID:           s.genID.Generate(),
			RollupTable:  table.Name,
			DimKey:       row.Key.String(),
			Period:       p.String(),
			PeriodStart:  p.Start(),
			Labels:       datatypes.JSON(labels),
			Quantity:     row.Metrics.Quantity,
			Amount:       row.Metrics.Amount,
			Discount:     row.Metrics.Discount,
			Transactions: row.Metrics.Transactions,
			History:      history,
		})
	}
	return records, nil
}

func toSnapshots(table domain.Table, records []domain.SnapshotRecord) ([]domain.Snapshot, error) {
	out := make([]domain.Snapshot, 0, len(records))
	for _, rec := range records {
		snap, err := toSnapshot(table, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	slices.SortStableFunc(out, func(a, b domain.Snapshot) int {
		if a.Period.Before(b.Period) {
			return -1
		}
		if a.Period.After(b.Period) {
			return 1
		}
		return domain.CompareKeys(a.Key, b.Key)
	})
	return out, nil
}

func toSnapshot(table domain.Table, rec domain.SnapshotRecord) (domain.Snapshot, error) {
	p, err := period.Parse(table.Granularity, rec.Period)
	if err != nil {
		return domain.Snapshot{}, err
	}
	key, err := domain.ParseKey(rec.DimKey)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var labels domain.Labels
	if len(rec.Labels) > 0 {
		if err := json.Unmarshal(rec.Labels, &labels); err != nil {
			return domain.Snapshot{}, fmt.Errorf("labels of %s: %w", rec.DimKey, err)
		}
	}
	var history []domain.HistoryEntry
	if len(rec.History) > 0 {
		if err := json.Unmarshal(rec.History, &history); err != nil {
			return domain.Snapshot{}, fmt.Errorf("history of %s: %w", rec.DimKey, err)
		}
	}
	if len(history) == 0 {
		history = nil
	}

	return domain.Snapshot{
		Table:  rec.RollupTable,
		Period: p,
		Key:    key,
		Labels: labels,
		Metrics: domain.Metrics{
			Quantity:     rec.Quantity,
			Amount:       rec.Amount,
			Discount:     rec.Discount,
			Transactions: rec.Transactions,
		},
		History: history,
	}, nil
}

package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	factdomain "github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/lock"
	"github.com/smallbiznis/retailsales/internal/observability/logger"
	"github.com/smallbiznis/retailsales/internal/observability/metrics"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/scd/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const feedParallelism = 8

// AddressFeed derives address changes from sales facts.
type AddressFeed interface {
	AddressChanges(ctx context.Context, from, to time.Time) ([]factdomain.AddressChange, error)
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Locker  lock.Locker
	Feed    AddressFeed            `optional:"true"`
	Metrics *metrics.RollupMetrics `optional:"true"`
}

// Service keeps customer addresses as type-2 versions: a change closes the
// current version and opens a new one starting on the effective date.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	locker  lock.Locker
	feed    AddressFeed
	metrics *metrics.RollupMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("scd.address"),
		genID:   p.GenID,
		repo:    p.Repo,
		locker:  p.Locker,
		feed:    p.Feed,
		metrics: p.Metrics,
	}
}

// ApplyAttributeChange records that customerID's address is value from the
// effective day on. Repeating the current value, or replaying a change that
// already holds on that day, is a no-op.
func (s *Service) ApplyAttributeChange(ctx context.Context, customerID, value string, effective time.Time) (domain.ChangeResult, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.ChangeResult{}, domain.ErrInvalidCustomer
	}
	value = normalizeAddress(value)
	if value == "" {
		return domain.ChangeResult{}, fmt.Errorf("%w: address is empty", domain.ErrInvalidValue)
	}
	if effective.IsZero() {
		return domain.ChangeResult{}, fmt.Errorf("%w: effective date is required", domain.ErrInvalidValue)
	}
	day := period.NewDay(effective).Start()

	release, err := s.locker.Lock(ctx, "address:"+customerID)
	if err != nil {
		return domain.ChangeResult{}, err
	}
	defer release()

	var result domain.ChangeResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindCurrent(ctx, tx, customerID, true)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if current == nil {
			opened := s.newVersion(customerID, value, day, now)
			if err := s.repo.Insert(ctx, tx, &opened); err != nil {
				return err
			}
			result = domain.ChangeResult{Outcome: domain.OutcomeOpened, Opened: &opened}
			return nil
		}

		if current.Address == value {
			result = domain.ChangeResult{Outcome: domain.OutcomeNoop}
			return nil
		}

		if !day.After(current.StartDate) {
			held, err := s.repo.FindAt(ctx, tx, customerID, day)
			if err != nil {
				return err
			}
			if held != nil && held.Covers(day) && held.Address == value {
				result = domain.ChangeResult{Outcome: domain.OutcomeNoop}
				return nil
			}
			return fmt.Errorf("%w: %s starts %s, change effective %s",
				domain.ErrEffectiveDateNotAfterCurrent,
				customerID,
				current.StartDate.Format(time.DateOnly),
				day.Format(time.DateOnly),
			)
		}

		if err := s.repo.Close(ctx, tx, current.ID, day); err != nil {
			return err
		}
		closed := *current
		end := day
		closed.EndDate = &end
		closed.IsCurrent = false
		closed.UpdatedAt = now

		opened := s.newVersion(customerID, value, day, now)
		if err := s.repo.Insert(ctx, tx, &opened); err != nil {
			return err
		}
		result = domain.ChangeResult{Outcome: domain.OutcomeReplaced, Closed: &closed, Opened: &opened}
		return nil
	})

	log := logger.WithContext(ctx, s.log)
	if err != nil {
		if errors.Is(err, domain.ErrEffectiveDateNotAfterCurrent) {
			s.metrics.IncSCDChange(metrics.SCDOutcomeRejected)
		}
		log.Warn("address change failed",
			zap.String("customer_id", customerID),
			zap.String("effective_date", day.Format(time.DateOnly)),
			zap.Error(err),
		)
		return domain.ChangeResult{}, err
	}

	s.metrics.IncSCDChange(string(result.Outcome))
	log.Debug("address change applied",
		zap.String("customer_id", customerID),
		zap.String("effective_date", day.Format(time.DateOnly)),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

// ApplyFeed applies changes per customer in effective-date order. Customers
// are processed concurrently; the first failure stops the feed. Every change
// commits on its own, so rerunning a failed feed is safe.
func (s *Service) ApplyFeed(ctx context.Context, changes []domain.AttributeChange) (domain.FeedResult, error) {
	byCustomer := make(map[string][]domain.AttributeChange)
	order := make([]string, 0)
	for _, change := range changes {
		id := strings.TrimSpace(change.CustomerID)
		if id == "" {
			return domain.FeedResult{}, domain.ErrInvalidCustomer
		}
		if _, ok := byCustomer[id]; !ok {
			order = append(order, id)
		}
		byCustomer[id] = append(byCustomer[id], change)
	}

	var (
		mu     sync.Mutex
		result domain.FeedResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedParallelism)
	for _, id := range order {
		batch := byCustomer[id]
		slices.SortStableFunc(batch, func(a, b domain.AttributeChange) int {
			return cmp.Compare(a.EffectiveDate.Unix(), b.EffectiveDate.Unix())
		})
		g.Go(func() error {
			var local domain.FeedResult
			for _, change := range batch {
				res, err := s.ApplyAttributeChange(gctx, id, change.Value, change.EffectiveDate)
				if err != nil {
					return err
				}
				local.Add(res)
			}
			mu.Lock()
			result.Merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	s.log.Info("address feed applied",
		zap.Int("customers", len(order)),
		zap.Int("changes", result.Changes),
		zap.Int("opened", result.Opened),
		zap.Int("replaced", result.Replaced),
		zap.Int("noop", result.Noop),
	)
	return result, nil
}

// SyncFromFacts applies the address feed derived from facts sold in [from, to).
func (s *Service) SyncFromFacts(ctx context.Context, from, to time.Time) (domain.FeedResult, error) {
	if s.feed == nil {
		return domain.FeedResult{}, errors.New("address feed not configured")
	}
	observed, err := s.feed.AddressChanges(ctx, from, to)
	if err != nil {
		return domain.FeedResult{}, err
	}

	changes := make([]domain.AttributeChange, 0, len(observed))
	for _, obs := range observed {
		changes = append(changes, domain.AttributeChange{
			CustomerID:    obs.CustomerID,
			Value:         obs.Address,
			EffectiveDate: obs.EffectiveDate,
		})
	}
	return s.ApplyFeed(ctx, changes)
}

// ValueAt returns the version valid on day.
func (s *Service) ValueAt(ctx context.Context, customerID string, day time.Time) (*domain.AddressVersion, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}
	version, err := s.repo.FindAt(ctx, s.db, customerID, period.NewDay(day).Start())
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, domain.ErrVersionNotFound
	}
	return version, nil
}

// History lists every version of the customer's address, oldest first.
func (s *Service) History(ctx context.Context, customerID string) ([]domain.AddressVersion, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}
	return s.repo.ListByCustomer(ctx, s.db, customerID)
}

func (s *Service) newVersion(customerID, value string, start, now time.Time) domain.AddressVersion {
	return domain.AddressVersion{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Address:    value,
		StartDate:  start,
		IsCurrent:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func normalizeAddress(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/period"
	pkgdb "github.com/smallbiznis/retailsales/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("fact.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// InsertTransaction validates and stores a single transaction. A rejected
// transaction writes nothing.
func (s *Service) InsertTransaction(ctx context.Context, req domain.InsertTransactionRequest) (snowflake.ID, error) {
	fact, err := s.buildFact(req)
	if err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &fact)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return 0, fmt.Errorf("%w: %s", domain.ErrDuplicateTransaction, fact.TransactionID)
		}
		return 0, err
	}

	s.log.Debug("transaction inserted",
		zap.String("transaction_id", fact.TransactionID),
		zap.String("fact_id", fact.ID.String()),
	)
	return fact.ID, nil
}

// ImportFeed validates every row of a CSV or XLSX feed and inserts them in a
// single transaction. Any invalid row rejects the whole feed.
func (s *Service) ImportFeed(ctx context.Context, format domain.FeedFormat, r io.Reader) (domain.ImportResult, error) {
	rows, err := readFeed(format, r)
	if err != nil {
		return domain.ImportResult{}, err
	}

	facts := make([]domain.SalesFact, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		fact, err := s.buildFact(row.req)
		if err != nil {
			return domain.ImportResult{}, &domain.RowError{Line: row.line, Err: err}
		}
		if first, ok := seen[fact.TransactionID]; ok {
			return domain.ImportResult{}, &domain.RowError{
				Line: row.line,
				Err:  fmt.Errorf("%w: %s repeats line %d", domain.ErrDuplicateTransaction, fact.TransactionID, first),
			}
		}
		seen[fact.TransactionID] = row.line
		facts = append(facts, fact)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertBatch(ctx, tx, facts)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ImportResult{}, fmt.Errorf("%w: feed contains an existing transaction", domain.ErrDuplicateTransaction)
		}
		return domain.ImportResult{}, err
	}

	s.log.Info("feed imported", zap.String("format", string(format)), zap.Int("rows", len(facts)))
	return domain.ImportResult{Rows: len(facts)}, nil
}

// AddressChanges derives the address feed for [from, to): for each customer
// and day the last address seen that day, dropping repeats of the previous
// address. Output is ordered by date, then customer.
func (s *Service) AddressChanges(ctx context.Context, from, to time.Time) ([]domain.AddressChange, error) {
	observations, err := s.repo.ListAddressObservations(ctx, s.db, from, to)
	if err != nil {
		return nil, err
	}

	type dayKey struct {
		customer string
		day      time.Time
	}
	latest := make(map[dayKey]string)
	order := make([]dayKey, 0)
	for _, obs := range observations {
		address := normalizeSpace(obs.CustomerAddress)
		if address == "" {
			continue
		}
		key := dayKey{customer: obs.CustomerID, day: period.NewDay(obs.SoldOn).Start()}
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = address
	}

	slices.SortStableFunc(order, func(a, b dayKey) int {
		if c := a.day.Compare(b.day); c != 0 {
			return c
		}
		return strings.Compare(a.customer, b.customer)
	})

	changes := make([]domain.AddressChange, 0, len(order))
	current := make(map[string]string)
	for _, key := range order {
		address := latest[key]
		if current[key.customer] == address {
			continue
		}
		current[key.customer] = address
		changes = append(changes, domain.AddressChange{
			CustomerID:    key.customer,
			Address:       address,
			EffectiveDate: key.day,
		})
	}
	return changes, nil
}

func (s *Service) buildFact(req domain.InsertTransactionRequest) (domain.SalesFact, error) {
	req = normalizeRequest(req)
	if err := validate(req); err != nil {
		return domain.SalesFact{}, err
	}

	return domain.SalesFact{
		ID:              s.genID.Generate(),
		TransactionID:   req.TransactionID,
		SoldOn:          period.NewDay(req.SoldOn).Start(),
		CustomerID:      req.CustomerID,
		CustomerName:    req.CustomerName,
		CustomerAddress: req.CustomerAddress,
		RegionID:        req.RegionID,
		RegionName:      req.RegionName,
		CategoryID:      req.CategoryID,
		CategoryName:    req.CategoryName,
		ProductID:       req.ProductID,
		ProductName:     req.ProductName,
		Quantity:        req.Quantity,
		UnitPrice:       req.UnitPrice,
		Discount:        req.Discount,
		Amount:          req.Amount,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func normalizeRequest(req domain.InsertTransactionRequest) domain.InsertTransactionRequest {
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.CustomerName = normalizeSpace(req.CustomerName)
	req.CustomerAddress = normalizeSpace(req.CustomerAddress)
	req.RegionID = strings.TrimSpace(req.RegionID)
	req.RegionName = normalizeSpace(req.RegionName)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	req.CategoryName = normalizeSpace(req.CategoryName)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.ProductName = normalizeSpace(req.ProductName)
	return req
}

func validate(req domain.InsertTransactionRequest) error {
	required := []struct {
		field string
		value string
	}{
		{"transaction_id", req.TransactionID},
		{"customer_id", req.CustomerID},
		{"customer_name", req.CustomerName},
		{"region_id", req.RegionID},
		{"region_name", req.RegionName},
		{"category_id", req.CategoryID},
		{"category_name", req.CategoryName},
		{"product_id", req.ProductID},
		{"product_name", req.ProductName},
	}
	for _, r := range required {
		if r.value == "" {
			return &domain.ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if req.SoldOn.IsZero() {
		return &domain.ValidationError{Field: "sold_on", Reason: "required"}
	}
	if req.Quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must_be_positive", Actual: strconv.FormatInt(req.Quantity, 10)}
	}
	if req.UnitPrice < 0 {
		return &domain.ValidationError{Field: "unit_price", Reason: "must_not_be_negative", Actual: domain.FormatMoney(req.UnitPrice)}
	}
	if req.Discount < 0 {
		return &domain.ValidationError{Field: "discount", Reason: "must_not_be_negative", Actual: domain.FormatMoney(req.Discount)}
	}
	if req.UnitPrice > 0 && req.Quantity > math.MaxInt64/req.UnitPrice {
		return &domain.ValidationError{Field: "quantity", Reason: "overflow"}
	}

	gross := req.Quantity * req.UnitPrice
	if req.Discount > gross {
		return &domain.ValidationError{
			Field:    "discount",
			Reason:   "exceeds_gross",
			Expected: "<= " + domain.FormatMoney(gross),
			Actual:   domain.FormatMoney(req.Discount),
		}
	}
	if expected := gross - req.Discount; req.Amount != expected {
		return &domain.ValidationError{
			Field:    "amount",
			Reason:   "mismatch",
			Expected: domain.FormatMoney(expected),
			Actual:   domain.FormatMoney(req.Amount),
		}
	}
	return nil
}

func normalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// IsValidationError reports whether err rejects the input rather than
// signalling an infrastructure failure.
func IsValidationError(err error) bool {
	var vErr *domain.ValidationError
	return errors.As(err, &vErr)
}

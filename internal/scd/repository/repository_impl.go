package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retailsales/internal/scd/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const currentIndexName = "ux_customer_address_versions_current"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// EnsureCurrentIndex adds the partial unique index allowing one current
// version per customer. MySQL has no partial indexes and relies on the row
// lock alone.
func EnsureCurrentIndex(db *gorm.DB) error {
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s
		 ON customer_address_versions (customer_id)
		 WHERE is_current = true`,
		currentIndexName,
	)).Error
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, customerID string, forUpdate bool) (*domain.AddressVersion, error) {
	query := db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}

	var versions []domain.AddressVersion
	err := query.
		Where("customer_id = ? AND is_current = ?", customerID, true).
		Limit(1).
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *repo) FindAt(ctx context.Context, db *gorm.DB, customerID string, day time.Time) (*domain.AddressVersion, error) {
	var versions []domain.AddressVersion
	err := db.WithContext(ctx).
		Where("customer_id = ? AND start_date <= ? AND (end_date IS NULL OR end_date > ?)", customerID, day, day).
		Order("start_date DESC").
		Limit(1).
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID string) ([]domain.AddressVersion, error) {
	var versions []domain.AddressVersion
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("start_date ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, version *domain.AddressVersion) error {
	return db.WithContext(ctx).Create(version).Error
}

func (r *repo) Close(ctx context.Context, db *gorm.DB, id snowflake.ID, end time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.AddressVersion{}).
		Where("id = ? AND is_current = ?", id, true).
		Updates(map[string]any{
			"end_date":   end,
			"is_current": false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentChange
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/retailsales/internal/fact/domain"
	"gorm.io/gorm"
)

const insertBatchSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, fact *domain.SalesFact) error {
	return db.WithContext(ctx).Create(fact).Error
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, facts []domain.SalesFact) error {
	if len(facts) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(facts, insertBatchSize).Error
}

func (r *repo) ListAddressObservations(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.AddressObservation, error) {
	var rows []domain.AddressObservation
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, customer_address, sold_on
		 FROM sales_facts
		 WHERE sold_on >= ? AND sold_on < ? AND customer_address <> ''
		 ORDER BY sold_on ASC, id ASC`,
		from.UTC(),
		to.UTC(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package domain

import (
	"context"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, fact *SalesFact) error
	InsertBatch(ctx context.Context, db *gorm.DB, facts []SalesFact) error
	ListAddressObservations(ctx context.Context, db *gorm.DB, from, to time.Time) ([]AddressObservation, error)
}

// AddressObservation is a raw (customer, address, date) triple read from facts.
type AddressObservation struct {
	CustomerID      string    `gorm:"column:customer_id"`
	CustomerAddress string    `gorm:"column:customer_address"`
	SoldOn          time.Time `gorm:"column:sold_on"`
}

type Service interface {
	InsertTransaction(ctx context.Context, req InsertTransactionRequest) (snowflake.ID, error)
	ImportFeed(ctx context.Context, format FeedFormat, r io.Reader) (ImportResult, error)
	AddressChanges(ctx context.Context, from, to time.Time) ([]AddressChange, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindCurrent returns the open version or nil. forUpdate locks the row
	// until the surrounding transaction ends.
	FindCurrent(ctx context.Context, db *gorm.DB, customerID string, forUpdate bool) (*AddressVersion, error)
	FindAt(ctx context.Context, db *gorm.DB, customerID string, day time.Time) (*AddressVersion, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID string) ([]AddressVersion, error)
	Insert(ctx context.Context, db *gorm.DB, version *AddressVersion) error
	// Close ends the open version id at end. It fails with
	// ErrConcurrentChange when the version is no longer current.
	Close(ctx context.Context, db *gorm.DB, id snowflake.ID, end time.Time) error
}

type Service interface {
	ApplyAttributeChange(ctx context.Context, customerID, value string, effective time.Time) (ChangeResult, error)
	ApplyFeed(ctx context.Context, changes []AttributeChange) (FeedResult, error)
	SyncFromFacts(ctx context.Context, from, to time.Time) (FeedResult, error)
	ValueAt(ctx context.Context, customerID string, day time.Time) (*AddressVersion, error)
	History(ctx context.Context, customerID string) ([]AddressVersion, error)
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AddressVersion is one validity window of a customer's address. The window
// is [StartDate, EndDate); a nil EndDate marks the current version.
type AddressVersion struct {
	ID         snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID string       `gorm:"size:64;not null;index:idx_address_versions_customer,priority:1" json:"customer_id"`
	Address    string       `gorm:"size:512;not null" json:"address"`
	StartDate  time.Time    `gorm:"not null;index:idx_address_versions_customer,priority:2" json:"start_date"`
	EndDate    *time.Time   `json:"end_date,omitempty"`
	IsCurrent  bool         `gorm:"not null;default:false" json:"is_current"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (AddressVersion) TableName() string { return "customer_address_versions" }

// Covers reports whether the version was valid on day.
func (v AddressVersion) Covers(day time.Time) bool {
	if day.Before(v.StartDate) {
		return false
	}
	return v.EndDate == nil || day.Before(*v.EndDate)
}

// AttributeChange is one entry of an address feed.
type AttributeChange struct {
	CustomerID    string    `json:"customer_id"`
	Value         string    `json:"value"`
	EffectiveDate time.Time `json:"effective_date"`
}

type Outcome string

const (
	OutcomeOpened   Outcome = "opened"
	OutcomeReplaced Outcome = "replaced"
	OutcomeNoop     Outcome = "noop"
)

// ChangeResult describes what one change did. A no-op has neither Closed nor
// Opened.
type ChangeResult struct {
	Outcome Outcome         `json:"outcome"`
	Closed  *AddressVersion `json:"closed,omitempty"`
	Opened  *AddressVersion `json:"opened,omitempty"`
}

// FeedResult counts the outcomes of an applied feed.
type FeedResult struct {
	Changes  int `json:"changes"`
	Opened   int `json:"opened"`
	Replaced int `json:"replaced"`
	Noop     int `json:"noop"`
}

func (r *FeedResult) Add(res ChangeResult) {
	r.Changes++
	switch res.Outcome {
	case OutcomeOpened:
		r.Opened++
	case OutcomeReplaced:
		r.Replaced++
	default:
		r.Noop++
	}
}

func (r *FeedResult) Merge(o FeedResult) {
	r.Changes += o.Changes
	r.Opened += o.Opened
	r.Replaced += o.Replaced
	r.Noop += o.Noop
}

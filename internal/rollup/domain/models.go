package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/smallbiznis/retailsales/internal/period"
)

type Dimension string

const (
	DimensionCustomer Dimension = "customer"
	DimensionCategory Dimension = "category"
	DimensionRegion   Dimension = "region"
	DimensionProduct  Dimension = "product"
)

func ParseDimension(raw string) (Dimension, error) {
	d := Dimension(strings.ToLower(strings.TrimSpace(raw)))
	switch d {
	case DimensionCustomer, DimensionCategory, DimensionRegion, DimensionProduct:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown dimension %q", ErrInvalidTable, raw)
	}
}

// Table describes one derived rollup: its grain (dimension tuple) and the
// period granularity it accumulates over.
type Table struct {
	Name         string             `json:"name"`
	Dimensions   []Dimension        `json:"dimensions"`
	Granularity  period.Granularity `json:"granularity"`
	TrackHistory bool               `json:"track_history"`
	SeedPeriod   period.Period      `json:"seed_period,omitzero"`
	Disabled     bool               `json:"disabled,omitempty"`
}

func (t Table) Arity() int { return len(t.Dimensions) }

func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTable)
	}
	if len(t.Dimensions) == 0 {
		return fmt.Errorf("%w: %s has no dimensions", ErrInvalidTable, t.Name)
	}
	if !t.Granularity.Valid() {
		return fmt.Errorf("%w: %s granularity %q", ErrInvalidTable, t.Name, t.Granularity)
	}
	if !t.SeedPeriod.IsZero() && t.SeedPeriod.Granularity() != t.Granularity {
		return fmt.Errorf("%w: %s seed period %s", ErrGranularityMismatch, t.Name, t.SeedPeriod)
	}
	return nil
}

// Key is the ordered tuple of dimension key values identifying a row.
type Key []string

// String renders the key as a JSON array; it is the persisted form.
func (k Key) String() string {
	raw, _ := json.Marshal([]string(k))
	return string(raw)
}

func ParseKey(raw string) (Key, error) {
	var parts []string
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, raw)
	}
	return Key(parts), nil
}

// CompareKeys orders keys element by element.
func CompareKeys(a, b Key) int {
	return slices.Compare(a, b)
}

// Labels holds one descriptive label per dimension, parallel to Key.
type Labels []string

// Metrics are the additive measures of a rollup row. Money is in minor
// currency units.
type Metrics struct {
	Quantity     int64 `json:"quantity"`
	Amount       int64 `json:"amount"`
	Discount     int64 `json:"discount"`
	Transactions int64 `json:"transactions"`
}

func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		Quantity:     m.Quantity + o.Quantity,
		Amount:       m.Amount + o.Amount,
		Discount:     m.Discount + o.Discount,
		Transactions: m.Transactions + o.Transactions,
	}
}

// Delta is one key's activity within a single period.
type Delta struct {
	Key     Key     `json:"key"`
	Labels  Labels  `json:"labels"`
	Metrics Metrics `json:"metrics"`
}

// HistoryEntry is one period's statistics inside a tracked history array.
type HistoryEntry struct {
	Period        string `json:"period"`
	TotalDiscount int64  `json:"total_discount"`
	TotalAmount   int64  `json:"total_amount"`
	TotalQuantity int64  `json:"total_quantity"`
}

// Snapshot is the accumulated state of one key as of a period.
type Snapshot struct {
	Table   string         `json:"table"`
	Period  period.Period  `json:"period"`
	Key     Key            `json:"key"`
	Labels  Labels         `json:"labels"`
	Metrics Metrics        `json:"metrics"`
	History []HistoryEntry `json:"history,omitempty"`
}

// HistoryRow is one history element joined with its owning snapshot.
type HistoryRow struct {
	Table   string       `json:"table"`
	Period  string       `json:"period"`
	Key     Key          `json:"key"`
	Labels  Labels       `json:"labels"`
	Ordinal int          `json:"ordinal"`
	Entry   HistoryEntry `json:"entry"`
}

// LabelConflict reports a descriptive label that differs between the
// previous snapshot and the current delta for the same key.
type LabelConflict struct {
	Key       Key       `json:"key"`
	Dimension Dimension `json:"dimension"`
	Previous  string    `json:"previous"`
	Current   string    `json:"current"`
}

type PeriodStatus string

const (
	PeriodCommitted PeriodStatus = "committed"
	PeriodSkipped   PeriodStatus = "skipped"
)

type PeriodResult struct {
	Table          string        `json:"table"`
	Period         period.Period `json:"period"`
	Status         PeriodStatus  `json:"status"`
	Rows           int           `json:"rows"`
	LabelConflicts int           `json:"label_conflicts"`
}

// Report summarizes one backfill invocation.
type Report struct {
	RunID   string         `json:"run_id"`
	Results []PeriodResult `json:"results"`
}

func (r Report) Count(status PeriodStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

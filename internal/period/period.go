// Package period models the discrete time buckets rollups are computed over.
//
// A Period is either a calendar day or a calendar year, always anchored in UTC.
// Prev and Next step by one bucket of the same granularity; they are never
// relative to the wall clock.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Granularity string

const (
	Day  Granularity = "day"
	Year Granularity = "year"
)

const (
	dayLayout  = "2006-01-02"
	yearLayout = "2006"
)

var (
	ErrInvalidGranularity = errors.New("invalid_granularity")
	ErrInvalidPeriod      = errors.New("invalid_period")
)

// ParseGranularity accepts day/daily and year/yearly/annual.
func ParseGranularity(raw string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "day", "daily":
		return Day, nil
	case "year", "yearly", "annual":
		return Year, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, raw)
	}
}

func (g Granularity) Valid() bool {
	return g == Day || g == Year
}

type Period struct {
	grain Granularity
	start time.Time
}

// NewDay returns the day containing t (in UTC).
func NewDay(t time.Time) Period {
	t = t.UTC()
	return Period{grain: Day, start: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// NewYear returns the calendar year y.
func NewYear(y int) Period {
	return Period{grain: Year, start: time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

// Containing returns the period of granularity g that contains t.
func Containing(g Granularity, t time.Time) (Period, error) {
	switch g {
	case Day:
		return NewDay(t), nil
	case Year:
		return NewYear(t.UTC().Year()), nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
}

// Parse reads the canonical text form of a period of granularity g.
func Parse(g Granularity, raw string) (Period, error) {
	value := strings.TrimSpace(raw)
	switch g {
	case Day:
		t, err := time.Parse(dayLayout, value)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		return NewDay(t), nil
	case Year:
		if len(value) != 4 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		y, err := strconv.Atoi(value)
		if err != nil || y <= 0 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
		}
		return NewYear(y), nil
	default:
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, g)
	}
}

// ParseAny infers the granularity from the text form: four digits is a year,
// anything else must be a date.
func ParseAny(raw string) (Period, error) {
	if len(strings.TrimSpace(raw)) == 4 {
		return Parse(Year, raw)
	}
	return Parse(Day, raw)
}

func (p Period) Granularity() Granularity { return p.grain }

// Start is the inclusive lower bound of the period.
func (p Period) Start() time.Time { return p.start }

// End is the exclusive upper bound of the period.
func (p Period) End() time.Time { return p.Next().start }

func (p Period) IsZero() bool { return p.grain == "" }

func (p Period) Next() Period {
	switch p.grain {
	case Day:
		return Period{grain: Day, start: p.start.AddDate(0, 0, 1)}
	case Year:
		return Period{grain: Year, start: p.start.AddDate(1, 0, 0)}
	default:
		return p
	}
}

func (p Period) Prev() Period {
	switch p.grain {
	case Day:
		return Period{grain: Day, start: p.start.AddDate(0, 0, -1)}
	case Year:
		return Period{grain: Year, start: p.start.AddDate(-1, 0, 0)}
	default:
		return p
	}
}

func (p Period) Equal(o Period) bool {
	return p.grain == o.grain && p.start.Equal(o.start)
}

func (p Period) Before(o Period) bool { return p.start.Before(o.start) }

func (p Period) After(o Period) bool { return p.start.After(o.start) }

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.start) && t.Before(p.End())
}

func (p Period) String() string {
	switch p.grain {
	case Day:
		return p.start.Format(dayLayout)
	case Year:
		return p.start.Format(yearLayout)
	default:
		return ""
	}
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = Period{}
		return nil
	}
	parsed, err := ParseAny(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Range lists every period of granularity g from the one containing from up
// to and including the one containing to, in ascending order.
func Range(g Granularity, from, to time.Time) ([]Period, error) {
	first, err := Containing(g, from)
	if err != nil {
		return nil, err
	}
	last, err := Containing(g, to)
	if err != nil {
		return nil, err
	}
	if last.Before(first) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidPeriod, last, first)
	}

	var out []Period
	for p := first; !p.After(last); p = p.Next() {
		out = append(out, p)
	}
	return out, nil
}

// Between lists the periods strictly after from up to and including to.
func Between(from, to Period) []Period {
	if from.grain != to.grain || from.IsZero() {
		return nil
	}
	var out []Period
	for p := from.Next(); !p.After(to); p = p.Next() {
		out = append(out, p)
	}
	return out
}

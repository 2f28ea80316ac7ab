package period

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndStep(t *testing.T) {
	p, err := Parse(Day, "2024-02-28")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", p.Next().String())
	assert.Equal(t, "2024-03-01", p.Next().Next().String())
	assert.Equal(t, "2024-02-27", p.Prev().String())
	assert.True(t, p.Next().Prev().Equal(p))

	y, err := Parse(Year, "2024")
	require.NoError(t, err)
	assert.Equal(t, "2025", y.Next().String())
	assert.Equal(t, "2023", y.Prev().String())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), y.End())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(Day, "2024-13-01")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Parse(Year, "24")
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Parse(Granularity("week"), "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidGranularity)
}

func TestParseAnyInfersGranularity(t *testing.T) {
	y, err := ParseAny("2023")
	require.NoError(t, err)
	assert.Equal(t, Year, y.Granularity())

	d, err := ParseAny("2023-06-01")
	require.NoError(t, err)
	assert.Equal(t, Day, d.Granularity())
}

func TestContainsUsesHalfOpenInterval(t *testing.T) {
	d := NewDay(time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC))
	assert.True(t, d.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, d.Contains(time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)))
	assert.False(t, d.Contains(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestRange(t *testing.T) {
	from := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	days, err := Range(Day, from, to)
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Equal(t, "2023-12-30", days[0].String())
	assert.Equal(t, "2024-01-02", days[3].String())

	years, err := Range(Year, from, to)
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, "2023", years[0].String())
	assert.Equal(t, "2024", years[1].String())

	_, err = Range(Day, to, from)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestBetween(t *testing.T) {
	from := NewYear(2020)
	got := Between(from, NewYear(2023))
	require.Len(t, got, 3)
	assert.Equal(t, "2021", got[0].String())
	assert.Equal(t, "2023", got[2].String())

	assert.Empty(t, Between(NewYear(2023), NewYear(2023)))
	assert.Empty(t, Between(NewYear(2023), NewDay(time.Now())))
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Period Period `json:"period"`
	}
	raw, err := json.Marshal(wrapper{Period: NewYear(2024)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"period":"2024"}`, string(raw))

	var decoded wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"period":"2024-05-06"}`), &decoded))
	assert.Equal(t, Day, decoded.Period.Granularity())
	assert.Equal(t, "2024-05-06", decoded.Period.String())
}

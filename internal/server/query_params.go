package server

import (
	"errors"
	"strings"
	"time"
)

var errEmptyDate = errors.New("empty date")

// parseDay accepts YYYY-MM-DD or an RFC3339 timestamp and returns the UTC
// day start.
func parseDay(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errEmptyDate
	}
	if parsed, err := time.Parse(time.DateOnly, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	parsed = parsed.UTC()
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

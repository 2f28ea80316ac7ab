package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrInvalidFeedFormat    = errors.New("invalid_feed_format")
	ErrInvalidFeed          = errors.New("invalid_feed")
)

// ValidationError rejects a transaction. Expected and Actual are filled for
// arithmetic checks such as the amount consistency rule.
type ValidationError struct {
	Field    string `json:"field"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Expected != "" || e.Actual != "" {
		return fmt.Sprintf("validation_error: %s %s (expected %s, got %s)", e.Field, e.Reason, e.Expected, e.Actual)
	}
	return fmt.Sprintf("validation_error: %s %s", e.Field, e.Reason)
}

// RowError locates a failure inside an imported feed. Line is 1-based and
// counts the header.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

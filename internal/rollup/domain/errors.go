package domain

import "errors"

var (
	// ErrDuplicatePeriod means the period is already committed for the table.
	// Drivers treat it as a skip, never as a failure.
	ErrDuplicatePeriod = errors.New("duplicate_period")
	// ErrOutOfOrderPeriod means the predecessor period is missing or a later
	// period is already committed. The table's run must stop.
	ErrOutOfOrderPeriod = errors.New("out_of_order_period")

	ErrPeriodsNotAscending = errors.New("periods_not_ascending")
	ErrGranularityMismatch = errors.New("granularity_mismatch")
	ErrDuplicateKey        = errors.New("duplicate_key")
	ErrKeyArity            = errors.New("key_arity_mismatch")
	ErrUnknownTable        = errors.New("unknown_table")
	ErrInvalidTable        = errors.New("invalid_table")
	ErrInvalidKey          = errors.New("invalid_key")
	ErrNotCommitted        = errors.New("period_not_committed")
)

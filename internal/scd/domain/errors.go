package domain

import "errors"

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidValue    = errors.New("invalid_value")
	// ErrEffectiveDateNotAfterCurrent rejects a change that would start on or
	// before the current version and so overlap it.
	ErrEffectiveDateNotAfterCurrent = errors.New("effective_date_not_after_current")
	ErrConcurrentChange             = errors.New("concurrent_change")
	ErrVersionNotFound              = errors.New("version_not_found")
)

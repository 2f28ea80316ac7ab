package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	factdomain "github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/period"
	rollupdomain "github.com/smallbiznis/retailsales/internal/rollup/domain"
	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var factErr *factdomain.ValidationError
	if errors.As(err, &factErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: "transaction rejected",
			Errors: []ValidationError{
				{
					Field:    factErr.Field,
					Code:     factErr.Reason,
					Message:  factErr.Error(),
					Expected: factErr.Expected,
					Actual:   factErr.Actual,
				},
			},
		}
	}

	if code, ok := invalidValueCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, sentinelCode(err)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var invalidValueErrors = []error{
	ErrInvalidRequest,
	period.ErrInvalidPeriod,
	period.ErrInvalidGranularity,
	rollupdomain.ErrInvalidTable,
	rollupdomain.ErrPeriodsNotAscending,
	rollupdomain.ErrGranularityMismatch,
	scddomain.ErrInvalidCustomer,
	scddomain.ErrInvalidValue,
}

func invalidValueCode(err error) (string, bool) {
	for _, target := range invalidValueErrors {
		if errors.Is(err, target) {
			return target.Error(), true
		}
	}
	return "", false
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, period.ErrInvalidPeriod),
		errors.Is(err, rollupdomain.ErrPeriodsNotAscending),
		errors.Is(err, rollupdomain.ErrGranularityMismatch):
		return "period"
	case errors.Is(err, rollupdomain.ErrInvalidTable),
		errors.Is(err, period.ErrInvalidGranularity):
		return "table"
	case errors.Is(err, scddomain.ErrInvalidCustomer):
		return "customer_id"
	case errors.Is(err, scddomain.ErrInvalidValue):
		return "address"
	default:
		return "request"
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, factdomain.ErrDuplicateTransaction),
		errors.Is(err, scddomain.ErrEffectiveDateNotAfterCurrent),
		errors.Is(err, scddomain.ErrConcurrentChange),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, factdomain.ErrDuplicateTransaction):
		return "transaction already recorded"
	case errors.Is(err, scddomain.ErrEffectiveDateNotAfterCurrent):
		return "effective date must be after the current version"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, rollupdomain.ErrUnknownTable),
		errors.Is(err, rollupdomain.ErrNotCommitted),
		errors.Is(err, scddomain.ErrVersionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, rollupdomain.ErrUnknownTable):
		return "unknown rollup table"
	case errors.Is(err, rollupdomain.ErrNotCommitted):
		return "period not committed"
	case errors.Is(err, scddomain.ErrVersionNotFound):
		return "no address on that date"
	default:
		return "not found"
	}
}

func sentinelCode(err error) string {
	for _, target := range []error{
		factdomain.ErrDuplicateTransaction,
		scddomain.ErrEffectiveDateNotAfterCurrent,
		scddomain.ErrConcurrentChange,
		rollupdomain.ErrUnknownTable,
		rollupdomain.ErrNotCommitted,
		scddomain.ErrVersionNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ""
}

package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category is the normalized failure taxonomy for lookup calls. Every
// category degrades a batch to unknown; the category only drives logs and
// metrics.
type Category string

const (
	// CategoryTimeout indicates the call exceeded its deadline
	CategoryTimeout Category = "timeout"

	// CategoryBadData indicates a 2xx response whose body could not be decoded
	CategoryBadData Category = "bad_data"

	// CategoryAuthentication indicates rejected credentials (401/403)
	CategoryAuthentication Category = "authentication"

	// CategoryRateLimited indicates the service throttled the call (429)
	CategoryRateLimited Category = "rate_limited"

	// CategoryOutage indicates the service is unreachable or failing (5xx)
	CategoryOutage Category = "provider_outage"

	// CategoryRejected indicates any other non-2xx status
	CategoryRejected Category = "rejected"

	// CategoryInternal indicates a local failure before the call was made
	CategoryInternal Category = "internal"
)

// ErrSchemaViolation marks a response entry that claims to describe a known
// certificate but lacks a field the mapping needs. It is fatal for the task:
// the remote service speaks an incompatible schema.
var ErrSchemaViolation = errors.New("lookup response schema violation")

// Error wraps lookup failures with normalized categorization.
type Error struct {
	Category   Category
	StatusCode int // zero when no response was received
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("certificate lookup [%s]: %s", e.Category, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	return msg
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a new categorized lookup error.
func NewError(category Category, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the failure category from an error.
func CategoryOf(err error) Category {
	var le *Error
	if errors.As(err, &le) {
		return le.Category
	}
	if isTimeout(err) {
		return CategoryTimeout
	}
	return CategoryInternal
}

// statusError categorizes a non-2xx response.
func statusError(status int, body string) *Error {
	category := CategoryRejected
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = CategoryAuthentication
	case status == http.StatusTooManyRequests:
		category = CategoryRateLimited
	case status >= 500:
		category = CategoryOutage
	}
	return &Error{
		Category:   category,
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected status: %s", body),
	}
}

// transportError categorizes a failure to obtain a response at all.
func transportError(err error) *Error {
	if isTimeout(err) {
		return NewError(CategoryTimeout, "request timed out", err)
	}
	return NewError(CategoryOutage, "request failed", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

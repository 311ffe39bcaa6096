// Package faults defines the error taxonomy for upstream and pipeline
// failures. Callers classify provider outcomes into one of the categories
// below and branch on them with errors.As / the Is* helpers.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Category represents the category of a failure
type Category string

const (
	// CategoryTransient represents network errors and timeouts; no credential
	// penalty, eligible for immediate retry with another credential
	CategoryTransient Category = "transient"
	// CategoryRateLimited represents HTTP 429 from the provider
	CategoryRateLimited Category = "rate_limited"
	// CategoryUnauthorized represents HTTP 401/403 from the provider
	CategoryUnauthorized Category = "unauthorized"
	// CategoryPoolExhausted represents all credentials unavailable at once
	CategoryPoolExhausted Category = "pool_exhausted"
	// CategoryDataUnavailable represents no usable data for a required call
	CategoryDataUnavailable Category = "data_unavailable"
	// CategoryPartialData represents a subset of requested data missing
	CategoryPartialData Category = "partial_data"
)

// Fault is an error with an upstream failure category attached.
type Fault struct {
	Category Category
	Op       string
	Message  string
	Cause    error
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (caused by: %v)", f.Op, f.Category, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Category, f.Message)
}

// Unwrap returns the underlying cause
func (f *Fault) Unwrap() error {
	return f.Cause
}

// New creates a fault with the given category.
func New(category Category, op, message string, cause error) *Fault {
	return &Fault{Category: category, Op: op, Message: message, Cause: cause}
}

// Transient creates a transient fault (network error, timeout).
func Transient(op string, cause error) *Fault {
	return New(CategoryTransient, op, "transient upstream failure", cause)
}

// RateLimited creates a rate-limited fault.
func RateLimited(op string) *Fault {
	return New(CategoryRateLimited, op, "provider returned 429", nil)
}

// Unauthorized creates an unauthorized fault.
func Unauthorized(op string, status int) *Fault {
	return New(CategoryUnauthorized, op, fmt.Sprintf("provider returned %d", status), nil)
}

// PoolExhausted creates a pool-exhausted fault.
func PoolExhausted(op string) *Fault {
	return New(CategoryPoolExhausted, op, "all credentials cooling down or invalid", nil)
}

// DataUnavailable creates a data-unavailable fault.
func DataUnavailable(op, message string) *Fault {
	return New(CategoryDataUnavailable, op, message, nil)
}

// PartialData creates a partial-data fault.
func PartialData(op, message string) *Fault {
	return New(CategoryPartialData, op, message, nil)
}

// CategoryOf returns the category of err, or "" when err carries none.
func CategoryOf(err error) Category {
	var f *Fault
	if errors.As(err, &f) {
		return f.Category
	}
	return ""
}

// Is reports whether err carries the given category.
func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}

// FromStatusCode classifies an HTTP response status into a category.
// 2xx statuses map to no category.
func FromStatusCode(status int) Category {
	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryUnauthorized
	case status >= 500:
		return CategoryTransient
	default:
		return ""
	}
}

// Package errors provides error handling for ctxeng.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints carried alongside the error
//   - Marks, so domain sentinels can also match a broader class
//
// Usage:
//
//	// Wrap with context
//	if err := store.Flush(); err != nil {
//	    return errors.Wrap(err, "failed to flush credential store")
//	}
//
//	// Classify a domain sentinel at the return site
//	return errors.Mark(ErrMalformedCredential, errors.ErrInvalidRequest)
//
//	// Check the class at the edge
//	if errors.IsInvalidRequestError(err) {
//	    // 400
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
	Mark           = crdb.Mark
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Common sentinel errors for use across ctxeng.
// Domain packages Mark the errors they return with one of these so callers at
// the edge (HTTP handlers, CLI) can classify without knowing every package.
// Never Mark a sentinel at its declaration: Is matches on marks, so two
// sentinels sharing a mark would match each other.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates user input failed validation
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates the operation collides with one already running
	ErrConflict = New("resource conflict")

	// ErrServiceUnavailable indicates a required backend is not available
	ErrServiceUnavailable = New("service unavailable")

	// ErrUpstream indicates the external chat-completion API failed
	ErrUpstream = New("upstream failure")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsConflictError checks if an error is or wraps ErrConflict
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// IsUpstreamError checks if an error is or wraps ErrUpstream
func IsUpstreamError(err error) bool {
	return err != nil && Is(err, ErrUpstream)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// UserMessage returns the text shown to a user for err: the outermost message
// followed by any hints. Stack traces and details stay in the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if hint := FlattenHints(err); hint != "" {
		msg += " (" + hint + ")"
	}
	return msg
}

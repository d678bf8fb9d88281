// Package apperrors centralizes the error taxonomy used across the
// ledger, queue, provider, and handler layers so HTTP and log output stay
// consistent no matter which package raised the error.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for the purpose of picking an HTTP status and a
// log level; it is never sent to clients directly.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInsufficient  Kind = "insufficient_balance"
	KindRateLimited   Kind = "rate_limited"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

// Error is the app-wide error type. Handlers translate it to an HTTP
// response via StatusCode/Public; everything else can keep using %w.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal error to a client-safe message and kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StatusCode maps a Kind to the HTTP status the handler layer should send.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficient:
		return http.StatusPaymentRequired
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// As is a convenience wrapper over errors.As for the common case of
// recovering the *Error from a wrapped chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

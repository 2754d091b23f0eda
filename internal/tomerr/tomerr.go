// Package tomerr defines the error taxonomy shared by the controller and
// the worker. Every error that crosses a component boundary is classified
// into one of these kinds so that HTTP responses, job error records, and
// retry decisions all read from the same table.
package tomerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable label for the client contract; it never changes shape
// once published.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindAuthRequired       Kind = "AUTH_REQUIRED"
	KindAuthDenied         Kind = "AUTH_DENIED"
	KindNotFound           Kind = "NOT_FOUND"
	KindTemplateNotFound  Kind = "TEMPLATE_NOT_FOUND"
	KindParseError        Kind = "PARSE_ERROR"
	KindGatingError       Kind = "GATING_ERROR"
	KindTransportError     Kind = "TRANSPORT_ERROR"
	KindAuthFailure        Kind = "AUTH_FAILURE"
	KindTimeoutError      Kind = "TIMEOUT_ERROR"
	KindInternal           Kind = "INTERNAL"
)

// RetryHint classifies whether a worker-side failure should be retried.
type RetryHint string

const (
	RetryNone      RetryHint = ""
	RetryTransient RetryHint = "TRANSIENT"
	RetryFatal     RetryHint = "FATAL"
)

// retryHints is the fixed Kind → RetryHint mapping from the error taxonomy.
var retryHints = map[Kind]RetryHint{
	KindValidation:       RetryNone,
	KindAuthRequired:     RetryNone,
	KindAuthDenied:       RetryNone,
	KindNotFound:         RetryNone,
	KindTemplateNotFound: RetryNone,
	KindParseError:       RetryNone,
	KindGatingError:      RetryTransient,
	KindTransportError:   RetryTransient,
	KindAuthFailure:      RetryFatal,
	KindTimeoutError:     RetryTransient,
	KindInternal:         RetryNone,
}

// httpStatus is the fixed Kind → HTTP status mapping from §7. Kinds whose
// status is "reported via job" (GATING_ERROR, TRANSPORT_ERROR,
// AUTH_FAILURE, TIMEOUT_ERROR when surfaced asynchronously) still get a
// status here for the synchronous HTTP path.
var httpStatus = map[Kind]int{
	KindValidation:       http.StatusBadRequest,
	KindAuthRequired:     http.StatusUnauthorized,
	KindAuthDenied:       http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindTemplateNotFound: http.StatusNotFound,
	KindParseError:       http.StatusUnprocessableEntity,
	KindGatingError:      http.StatusBadGateway,
	KindTransportError:   http.StatusBadGateway,
	KindAuthFailure:      http.StatusBadGateway,
	KindTimeoutError:     http.StatusGatewayTimeout,
	KindInternal:         http.StatusInternalServerError,
}

// Error is the taxonomy-classified error type passed across component
// boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// RetryHint reports the fixed retry classification for this error's kind.
func (e *Error) RetryHint() RetryHint {
	return retryHints[e.Kind]
}

// HTTPStatus reports the fixed HTTP status for this error's kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// As reports whether err (or something it wraps) is a *Error, returning it.
func As(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf classifies an arbitrary error, defaulting to INTERNAL when it
// carries no taxonomy of its own.
func KindOf(err error) Kind {
	if te, ok := As(err); ok {
		return te.Kind
	}
	return KindInternal
}

package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error so callers can branch without string matching.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindTransient       Kind = "transient"
	KindPermanent       Kind = "permanent"
	KindInternal        Kind = "internal"
)

// Error is a tagged error surfaced by services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// New builds a tagged error. Package-level sentinels are created with New and
// matched with errors.Is.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap tags err with a kind while keeping it in the chain.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCause returns a copy of a sentinel carrying err as its cause. The copy
// still matches the sentinel through errors.Is.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: &sentinelCause{sentinel: e, cause: err}}
}

type sentinelCause struct {
	sentinel *Error
	cause    error
}

func (s *sentinelCause) Error() string {
	if s.cause == nil {
		return ""
	}
	return s.cause.Error()
}

func (s *sentinelCause) Unwrap() []error {
	return []error{s.sentinel, s.cause}
}

// KindOf reports the kind of the first tagged error in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// CodeOf reports the machine-readable code of the first tagged error in the chain.
func CodeOf(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Code != "" {
		return tagged.Code
	}
	return "internal_error"
}

// PublicMessage returns a message safe to show to clients.
func PublicMessage(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind != KindInternal {
		return tagged.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient, KindPermanent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

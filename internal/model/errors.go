package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every pipeline failure matches exactly one of these via errors.Is.
var (
	ErrDecode            = errors.New("input invalid")
	ErrValidation        = errors.New("invalid URL")
	ErrForbiddenHost     = errors.New("host is not allowed")
	ErrUpstreamTransport = errors.New("upstream unavailable")
	ErrUpstreamTooLarge  = errors.New("upstream response too large")
	ErrUnexpected        = errors.New("internal error")
)

// Error is a classified pipeline failure. Detail is the client-safe subject of
// the failure (URL, host, ...) shown only in debug mode.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

// NewError builds an Error of the given kind.
func NewError(kind error, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

package client

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks any transport failure or non-success response from the backend.
var ErrUnavailable = errors.New("service unavailable")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }

// transportError wraps a dial or read failure so it matches ErrUnavailable while keeping
// the underlying cause reachable.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return e.op + ": " + e.err.Error() }

func (e *transportError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

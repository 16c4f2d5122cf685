package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure. Every kind maps to exactly one
// HTTP status, so a Fail result is deterministic for the client.
type Kind uint8

const (
	// KindPath is returned for invalid or traversing request paths.
	KindPath Kind = iota + 1
	// KindNotFound is returned when the resolved target does not exist.
	KindNotFound
	// KindGateway is returned when an upstream connector fails.
	KindGateway
	// KindTemplate is returned when a Present transformer fails.
	KindTemplate
	// KindInternal is returned for cache or generation bugs.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindNotFound:
		return "not-found"
	case KindGateway:
		return "gateway"
	case KindTemplate:
		return "template"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Status returns the HTTP status this kind maps to.
func (k Kind) Status() int {
	switch k {
	case KindPath:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindGateway:
		return http.StatusBadGateway
	case KindTemplate:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a pipeline failure with a kind.
// The message is for logs only and is never written to the client.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Kind.String() + ": " + e.msg + ": " + e.err.Error()
	}
	return e.Kind.String() + ": " + e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Errf creates an Error of the given kind.
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap wraps err in an Error of the given kind.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// StatusFor maps any error to the HTTP status the client should see.
// Gateway timeouts map to 504, other gateway failures to 502.
func StatusFor(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindGateway && errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return e.Kind.Status()
	}
	return http.StatusInternalServerError
}

// ErrorResponse builds the response sent for err. The body carries only
// the generic status text, never generation-internal state.
func ErrorResponse(err error) *Response {
	status := StatusFor(err)
	body := []byte(http.StatusText(status) + "\n")
	h := make(http.Header, 2)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{Status: status, Header: h, Body: body}
}

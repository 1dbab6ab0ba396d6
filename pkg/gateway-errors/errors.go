// Package gwerrors defines the gateway error taxonomy: a closed set of stable
// GTW-xxx codes plus a deterministic mapping from code to HTTP status.
// Services raise these errors; the HTTP layer translates them into the
// standard error envelope without re-deriving anything.
package gwerrors

import (
	"errors"
	"fmt"
)

// Error is a taxonomy-classified gateway error. Message overrides the code's
// default message when non-empty; Details carries field-level reasons for
// validation failures. Path and RequestID are attached at the transport
// boundary, not by the service that raised the error.
type Error struct {
	Code      Code
	Message   string
	Details   map[string]string
	Path      string
	RequestID string
	cause     error
}

// New constructs an Error with an override message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted override message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error under a taxonomy code. The cause is
// preserved for errors.Is/As and server-side logging but never serialized to
// clients.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails attaches a field→reason map, used for validation errors.
func (e *Error) WithDetails(details map[string]string) *Error {
	e.Details = details
	return e
}

// WithRequest stamps the request path and correlation id. Called by the HTTP
// layer before writing the envelope.
func (e *Error) WithRequest(path, requestID string) *Error {
	e.Path = path
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = DefaultMessage(e.Code)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.cause }

// ClientMessage is what callers are allowed to see: the override for the
// validation and user bands, the default registry message otherwise, so
// internal reason text never leaks through downstream/system errors.
func (e *Error) ClientMessage() string {
	switch CategoryOf(e.Code) {
	case CategoryValidation, CategoryUser:
		if e.Message != "" {
			return e.Message
		}
	}
	return DefaultMessage(e.Code)
}

// Status returns the derived HTTP status for this error.
func (e *Error) Status() int { return HTTPStatus(e.Code) }

// CodeOf extracts the taxonomy code from err, or CodeInternal when err is not
// a gateway error. This is the catch-all at the orchestration boundary.
func CodeOf(err error) Code {
	var gw *Error
	if errors.As(err, &gw) {
		return gw.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var gw *Error
	return errors.As(err, &gw) && gw.Code == code
}

// IsGatewayError reports whether err already carries a taxonomy code.
// Callers deciding whether to classify must use this, not AsError, which
// never returns nil.
func IsGatewayError(err error) bool {
	var gw *Error
	return errors.As(err, &gw)
}

// AsError normalizes err into an *Error, classifying unknown errors as
// internal without leaking their text to clients.
func AsError(err error) *Error {
	var gw *Error
	if errors.As(err, &gw) {
		return gw
	}
	return Wrap(err, CodeInternal, "")
}

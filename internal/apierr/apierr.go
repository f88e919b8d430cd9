// Package apierr defines the error taxonomy shared by services and handlers.
//
// Services return *Error values for anything the caller can act on. Any other
// error reaching a handler is reported as an internal failure.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeInvalid      Code = "INVALID_REQUEST"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a caller-facing failure with an HTTP status and optional
// field-level detail.
type Error struct {
	Code    Code
	Message string
	Status  int
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, strings.Join(e.Fields[k], ", "))
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithField appends a message for field and returns e.
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
	return e
}

// Validation reports rejected input. fields may be nil.
func Validation(msg string, fields map[string][]string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Status: http.StatusBadRequest, Fields: fields}
}

// FieldError is a validation error carrying a single field message.
func FieldError(msg, field, detail string) *Error {
	return Validation(msg, nil).WithField(field, detail)
}

// Invalid reports a malformed request (bad JSON, missing credentials).
func Invalid(msg string, err error) *Error {
	return &Error{Code: CodeInvalid, Message: msg, Status: http.StatusBadRequest, Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg, Status: http.StatusNotFound}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg, Status: http.StatusConflict}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg, Status: http.StatusUnauthorized}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, Status: http.StatusForbidden}
}

// Internal wraps an unexpected failure. The message is safe to return; err
// is only logged.
func Internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Status: http.StatusInternalServerError, Err: err}
}

// From returns err as an *Error, classifying unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("An unexpected error occurred", err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

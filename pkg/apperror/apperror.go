// Package apperror defines the application error taxonomy. Services return
// these errors as values; transport layers map codes to HTTP statuses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an application error.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeNotFound        Code = "not_found"
	CodeAuthorization   Code = "authorization"
	CodeState           Code = "state"
	CodeExternalService Code = "external_service"
)

// Error is a coded application error. It optionally wraps a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, &Error{Code: CodeNotFound}) works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error with the given code and message, keeping cause
// reachable through errors.Unwrap.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return New(CodeAuthorization, format, args...)
}

func State(format string, args ...any) *Error {
	return New(CodeState, format, args...)
}

func ExternalService(format string, args ...any) *Error {
	return New(CodeExternalService, format, args...)
}

// CodeOf extracts the code from err. ok is false when err carries no *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// HTTPStatus maps an error code to its HTTP response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuthorization:
		return http.StatusForbidden
	case CodeState:
		return http.StatusConflict
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

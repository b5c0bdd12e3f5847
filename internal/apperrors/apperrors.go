package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a category of failure. Handlers map codes to HTTP
// statuses; services decide codes, never statuses.
type Code int

const (
	Internal Code = iota + 1
	Validation
	NotFound
	NoTestCases
	UnsupportedLanguage
	ContestState
	Persistence
	PersistenceTimeout
	RankUpdate
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the code from any error, defaulting to Internal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// HTTPStatus maps an error code to the status the request surface
// should answer with.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case Validation, NoTestCases, UnsupportedLanguage:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case ContestState:
		return http.StatusConflict
	case Persistence, PersistenceTimeout:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely retry the request.
// Only transaction timeouts qualify; the sandbox run is never redone.
func Retryable(err error) bool {
	return GetCode(err) == PersistenceTimeout
}

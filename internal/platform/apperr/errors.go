// Package apperr defines the error kinds the service distinguishes and how
// each one is reported over HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Error kinds. Wrap them with the constructors below and test with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrSlotUnavailable     = errors.New("slot unavailable")
	ErrScheduleConflict    = errors.New("schedule conflict")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotificationFailure = errors.New("notification failure")
	ErrStorageFailure      = errors.New("storage failure")
)

// Codes returned in the "code" field of error bodies.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeSlotUnavailable  = "SLOT_UNAVAILABLE"
	CodeScheduleConflict = "SCHEDULE_CONFLICT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error carries a kind plus a client-facing message. Cause, when set, is
// only ever logged.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

func SlotUnavailable(format string, args ...interface{}) error {
	return newf(ErrSlotUnavailable, format, args...)
}

func ScheduleConflict(format string, args ...interface{}) error {
	return newf(ErrScheduleConflict, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newf(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(ErrForbidden, format, args...)
}

// Notification wraps a failed delivery. Callers log it; it is never returned
// to an HTTP client.
func Notification(cause error, format string, args ...interface{}) error {
	e := newf(ErrNotificationFailure, format, args...)
	e.Cause = cause
	return e
}

// Storage wraps a persistence error. Errors that already carry a kind pass
// through unchanged so a repository can report NotFound or SlotUnavailable
// directly.
func Storage(cause error, op string) error {
	if cause == nil {
		return nil
	}
	var ae *Error
	if errors.As(cause, &ae) {
		return cause
	}
	return &Error{Kind: ErrStorageFailure, Message: op, Cause: cause}
}

// Response is the JSON body of every error reply.
type Response struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Status maps an error to its HTTP status and code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, ErrSlotUnavailable):
		return http.StatusBadRequest, CodeSlotUnavailable
	case errors.Is(err, ErrScheduleConflict):
		return http.StatusBadRequest, CodeScheduleConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return CodeInternal
	}
}

// HTTPErrorHandler renders errors returned by handlers. Storage failures and
// unknown errors produce a generic 500 body; their detail goes to the log.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var status int
		var body Response

		var he *echo.HTTPError
		var ae *Error
		switch {
		case errors.As(err, &he):
			status = he.Code
			body = Response{Error: fmt.Sprint(he.Message), Code: codeForStatus(he.Code)}
			if he.Internal != nil && status >= http.StatusInternalServerError {
				logger.Error().Err(he.Internal).Str("path", c.Path()).Msg("request failed")
			}
		case errors.As(err, &ae):
			status, body.Code = Status(err)
			body.Error = ae.Message
		default:
			status, body.Code = http.StatusInternalServerError, CodeInternal
		}

		if status == http.StatusInternalServerError && he == nil {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("internal error")
			body.Error = "internal server error"
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}

// Package apperror defines the error types that cross the HTTP boundary.
// Each carries the envelope fields and maps to exactly one status code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Type string

const (
	TypeValidation     Type = "validation_error"
	TypeAuthentication Type = "authentication_error"
	TypeAuthorization  Type = "authorization_error"
	TypeNotFound       Type = "not_found_error"
	TypeRateLimit      Type = "rate_limit_error"
	TypeInternal       Type = "api_error"
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Type    Type
	Message string
	Code    string
	Param   string
	Details []FieldError

	err error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeAuthorization:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Validation reports invalid input. With field errors the message lists the
// fields and Param is set to the first one.
func Validation(message string, fields ...FieldError) *Error {
	e := &Error{
		Type:    TypeValidation,
		Message: message,
		Code:    "invalid_request",
		Details: fields,
	}
	if len(fields) > 0 {
		e.Param = fields[0].Field
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Field
		}
		e.Message = fmt.Sprintf("%s: %s", message, strings.Join(names, ", "))
	}
	return e
}

func InvalidParam(param, message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Code:    "invalid_parameter",
		Param:   param,
	}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: fmt.Sprintf("no such %s: '%s'", resource, id),
		Code:    "resource_missing",
	}
}

func Unauthenticated(message string) *Error {
	return &Error{Type: TypeAuthentication, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Type: TypeAuthorization, Message: message}
}

func RateLimited() *Error {
	return &Error{Type: TypeRateLimit, Message: "too many requests"}
}

// Internal hides err from clients; it stays reachable through errors.Unwrap
// for server-side logging.
func Internal(err error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: "an internal error occurred",
		err:     err,
	}
}

// From returns err as an *Error, wrapping anything unknown as Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func IsType(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

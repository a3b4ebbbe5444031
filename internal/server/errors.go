package server

import (
	"errors"
	"fmt"
	"net/http"
)

type errorKind int

const (
	kindInternal errorKind = iota
	kindValidation
	kindUnauthenticated
	kindForbidden
	kindNotFound
	kindConflict
)

// Error is the typed failure every operation returns. The transport
// layer maps Kind to an HTTP status; callers branch with errors.As.
type Error struct {
	Kind    errorKind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func errValidation(field, format string, args ...any) *Error {
	return &Error{Kind: kindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func errUnauthenticated(message string) *Error {
	return &Error{Kind: kindUnauthenticated, Message: message}
}

func errForbidden(message string) *Error {
	return &Error{Kind: kindForbidden, Message: message}
}

func errNotFound(message string) *Error {
	return &Error{Kind: kindNotFound, Message: message}
}

func errConflict(message string) *Error {
	return &Error{Kind: kindConflict, Message: message}
}

func errInternal(err error) *Error {
	return &Error{Kind: kindInternal, Message: err.Error()}
}

func isKind(err error, kind errorKind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

func httpStatus(err error) int {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Kind {
	case kindValidation:
		return http.StatusBadRequest
	case kindUnauthenticated:
		return http.StatusUnauthorized
	case kindForbidden:
		return http.StatusForbidden
	case kindNotFound:
		return http.StatusNotFound
	case kindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

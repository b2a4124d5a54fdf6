// Package apierr maps the error taxonomy in spec section 7 onto HTTP
// status codes so handlers don't re-derive it at every call site.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Unauthenticated(err error) *Error {
	return New(http.StatusUnauthorized, "unauthenticated", err)
}

func Forbidden(err error) *Error {
	return New(http.StatusForbidden, "forbidden", err)
}

func Locked(err error) *Error {
	return New(http.StatusLocked, "locked", err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, "not_found", err)
}

func Conflict(err error) *Error {
	return New(http.StatusConflict, "conflict", err)
}

func Invalid(err error) *Error {
	return New(http.StatusBadRequest, "invalid", err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "internal", err)
}

// As extracts an *Error from err, falling back to a 500 wrapper so every
// handler can respond uniformly even for errors apierr never touched.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

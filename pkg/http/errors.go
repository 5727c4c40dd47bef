package http

import (
	"fmt"
	"net/http"
)

// Codes carried in error envelopes.
const (
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeUnavailable = "ERR_UNAVAILABLE"
	CodeInternal    = "ERR_INTERNAL"
)

// AppError is returned by handlers and rendered by AppErrorResponse with its
// own status. Err is for logs only and never leaves the process.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, a...), Status: http.StatusNotFound}
}

// BadRequestErrorf blames one request field.
func BadRequestErrorf(field, format string, a ...interface{}) *AppError {
	return &AppError{Code: CodeBadRequest, Field: field, Message: fmt.Sprintf(format, a...), Status: http.StatusBadRequest}
}

// UnavailableError means the backing snapshot or store cannot answer yet.
func UnavailableError(message string) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Status: http.StatusServiceUnavailable}
}

func InternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError}
}

package processing

import (
	"errors"
	"net/http"
)

// Code identifies the kind of failure reported to clients
type Code string

const (
	CodeMethodNotAllowed   Code = "METHOD_NOT_ALLOWED"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeOCRServiceError    Code = "OCR_SERVICE_ERROR"
	CodeParseError         Code = "PARSE_ERROR"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Error is a request failure with a client-facing code and message
type Error struct {
	Code    Code
	Message string
	// Debug carries extra detail, such as the unparseable model reply
	Debug string
	Cause error
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status is the HTTP status for the error
func (e *Error) Status() int {
	if e.Code == CodeMethodNotAllowed {
		return http.StatusMethodNotAllowed
	}
	return http.StatusBadRequest
}

// asError converts any error into an *Error, treating unknown errors as internal
func asError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return newError(CodeInternalError, "Unexpected error while processing the receipt", err)
}

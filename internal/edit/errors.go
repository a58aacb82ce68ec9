package edit

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindInference  Kind = "InferenceError"
	KindTimeout    Kind = "TimeoutError"
	// KindLogging marks audit write failures. They are logged, never returned.
	KindLogging Kind = "LoggingError"
)

// Error is the only error Handle returns. Message is safe to show callers; Err is for logs.
type Error struct {
	Kind      Kind
	RequestID string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.RequestID, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInference:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func validationError(requestID, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, RequestID: requestID, Message: fmt.Sprintf(format, args...)}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	ErrorID   string `json:"error_id"`
	RequestID string `json:"request_id,omitempty"`
	ErrorType Kind   `json:"error_type,omitempty"`
	Message   string `json:"message"`
}

// ErrorResponseFor maps err to a status code and caller-safe body. errorID is used when err
// carries no request id of its own.
func ErrorResponseFor(err error, errorID string) (int, ErrorResponse) {
	var editErr *Error
	if errors.As(err, &editErr) {
		return editErr.StatusCode(), ErrorResponse{
			ErrorID:   editErr.RequestID,
			RequestID: editErr.RequestID,
			ErrorType: editErr.Kind,
			Message:   editErr.Message,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{ErrorID: errorID, Message: "internal error"}
}

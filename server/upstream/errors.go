package upstream

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode classifies upstream failures.
type ErrorCode string

const (
	// ErrCodeTransport indicates a network-level failure (connection
	// reset, DNS, client-side timeout). Retriable.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeServerError indicates a 5xx or 408 from the upstream. Retriable.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeRateLimited indicates a 429 from the upstream itself. Retriable,
	// and additionally feeds a cooldown hint back to the local limiter.
	ErrCodeRateLimited ErrorCode = "UPSTREAM_RATE_LIMITED"
	// ErrCodeClientError indicates a non-429 4xx. Not retriable.
	ErrCodeClientError ErrorCode = "CLIENT_ERROR"
	// ErrCodeBadPayload indicates a 2xx with a malformed body. Not retriable.
	ErrCodeBadPayload ErrorCode = "BAD_PAYLOAD"
	// ErrCodeBadOperation indicates an unknown provider/operation pair.
	ErrCodeBadOperation ErrorCode = "BAD_OPERATION"
)

// Error is a structured upstream failure. Retriable errors are retried
// internally up to the policy budget before being surfaced.
type Error struct {
	Code      ErrorCode
	Provider  string
	Operation string
	// Status is the HTTP status, zero for transport failures.
	Status    int
	Retriable bool
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s %s: %s: %v", e.Code, e.Provider, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s %s: %s", e.Code, e.Provider, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError extracts a structured upstream error from an error chain.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsRetriable reports whether the error is a retriable upstream failure.
func IsRetriable(err error) bool {
	if ue, ok := AsError(err); ok {
		return ue.Retriable
	}
	return false
}

// IsCode checks if an error carries a specific upstream error code.
func IsCode(err error, code ErrorCode) bool {
	if ue, ok := AsError(err); ok {
		return ue.Code == code
	}
	return false
}

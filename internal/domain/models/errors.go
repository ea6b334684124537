package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable means the oracle has no price for the needed timestamp.
	ErrDataUnavailable = errors.New("price data unavailable")
	// ErrValidation means a request or ensemble is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNoResponse means a worker timed out or the transport failed.
	ErrNoResponse = errors.New("no response")
)

type ValidationReason string

const (
	ReasonWrongPathCount    ValidationReason = "wrong_path_count"
	ReasonWrongLength       ValidationReason = "wrong_length"
	ReasonTimestampMismatch ValidationReason = "timestamp_mismatch"
	ReasonInvalidValue      ValidationReason = "invalid_value"
	ReasonInvalidRequest    ValidationReason = "invalid_request"
)

// ValidationError carries the reason a request or ensemble was rejected.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

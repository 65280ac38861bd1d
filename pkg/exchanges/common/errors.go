package common

import (
	"errors"
	"fmt"
)

// TransientError wraps failures worth retrying: timeouts, disconnects,
// 5xx responses, rate-limit backoffs.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectionError wraps definitive exchange refusals. Retrying the same
// request will not help.
type RejectionError struct {
	Op     string
	Code   int
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: rejected (code %d): %s", e.Op, e.Code, e.Reason)
}

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Reject builds a non-retryable rejection.
func Reject(op string, code int, reason string) error {
	return &RejectionError{Op: op, Code: code, Reason: reason}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejection reports whether err is a definitive refusal.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

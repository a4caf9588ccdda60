package workflow

import (
	"context"
	"errors"
	"fmt"
)

// TransientError marks an infrastructure/service fault eligible for retry.
// Business errors (parse, validation, missing fields) are never wrapped in
// it and therefore never retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fault in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps a collaborator fault for the retry policy.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether the retry policy may re-run the step. The
// allow-list is explicit: collaborator faults wrapped in TransientError and
// exceeded step deadlines. A cancelled execution is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

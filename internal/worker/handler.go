package worker

import (
	"context"
	"errors"
)

// JobHandler executes one job type. Implementations live in
// internal/jobs and unmarshal their own payloads.
type JobHandler interface {
	// Type returns the job_type value this handler owns.
	Type() string

	// Handle runs the job. Wrap the error with NewPermanentError when a
	// retry cannot succeed (bad payload, order gone).
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError marks a failure that must not be retried. The job goes
// straight to 'failed' instead of being rescheduled.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as permanent.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is permanent.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

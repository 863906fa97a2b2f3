package worker

import (
	"context"
	"errors"
)

// JobHandler executes one type of background job.
type JobHandler interface {
	// Type must match the job_type column of the jobs it handles.
	Type() string

	// Handle runs the job. The payload is the raw JSON stored at enqueue
	// time. Wrap an error with NewPermanentError to stop retries.
	Handle(ctx context.Context, payload []byte) error
}

// FinalFailureHandler is implemented by handlers that must undo side effects
// once a job has failed for the last time, such as returning a consumed
// quota unit. It is called after the job row is marked failed.
type FinalFailureHandler interface {
	OnFinalFailure(ctx context.Context, payload []byte, err error)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the job is failed without further retries.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is or wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

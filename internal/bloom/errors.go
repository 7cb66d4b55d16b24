package bloom

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseInvalidCapacity = ErrorCause("invalid_capacity")
	ErrCausePersistFailure  = ErrorCause("persist_failure")
	ErrCauseLoadFailure     = ErrorCause("load_failure")
	ErrCauseCorruptSnapshot = ErrorCause("corrupt_snapshot")
)

type BloomError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *BloomError) Error() string {
	return fmt.Sprintf("bloom: %s: %s", e.Cause, e.Message)
}

func (e *BloomError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *BloomError) IsRetryable() bool {
	return e.Retryable
}

func (e *BloomError) Is(target error) bool {
	_, ok := target.(*BloomError)
	return ok
}

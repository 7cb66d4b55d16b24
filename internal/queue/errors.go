package queue

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseDepthExceeded  = ErrorCause("depth_exceeded")
	ErrCauseBackendFailure = ErrorCause("backend_failure")
	ErrCauseUnknownEntry   = ErrorCause("unknown_entry")
)

type QueueError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue: %s: %s", e.Cause, e.Message)
}

func (e *QueueError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *QueueError) IsRetryable() bool {
	return e.Retryable
}

func (e *QueueError) Is(target error) bool {
	_, ok := target.(*QueueError)
	return ok
}

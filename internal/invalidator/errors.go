package invalidator

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseSinkFailure = ErrorCause("sink_failure")
)

type InvalidatorError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *InvalidatorError) Error() string {
	return fmt.Sprintf("invalidator: %s: %s", e.Cause, e.Message)
}

func (e *InvalidatorError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *InvalidatorError) IsRetryable() bool { return e.Retryable }

func (e *InvalidatorError) Is(target error) bool {
	_, ok := target.(*InvalidatorError)
	return ok
}

var _ failure.ClassifiedError = (*InvalidatorError)(nil)

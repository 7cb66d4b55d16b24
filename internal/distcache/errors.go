package distcache

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseBackendFailure   = ErrorCause("backend_failure")
	ErrCauseSerialization    = ErrorCause("serialization")
	ErrCauseNotFound         = ErrorCause("not_found")
)

type CacheError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("distcache: %s: %s", e.Cause, e.Message)
}

func (e *CacheError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *CacheError) IsRetryable() bool { return e.Retryable }

func (e *CacheError) Is(target error) bool {
	other, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return other.Cause == e.Cause
}

var _ failure.ClassifiedError = (*CacheError)(nil)

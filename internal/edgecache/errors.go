package edgecache

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseNoMatchingRule = ErrorCause("no_matching_rule")
	ErrCauseProviderFailure = ErrorCause("provider_failure")
	ErrCauseInvalidConfig  = ErrorCause("invalid_config")
)

type EdgeCacheError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *EdgeCacheError) Error() string {
	return fmt.Sprintf("edgecache: %s: %s", e.Cause, e.Message)
}

func (e *EdgeCacheError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *EdgeCacheError) IsRetryable() bool { return e.Retryable }

func (e *EdgeCacheError) Is(target error) bool {
	other, ok := target.(*EdgeCacheError)
	if !ok {
		return false
	}
	return other.Cause == e.Cause
}

var _ failure.ClassifiedError = (*EdgeCacheError)(nil)

package distsync

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseBackendFailure = ErrorCause("backend_failure")
	ErrCauseNotMaster      = ErrorCause("not_master")
	ErrCauseNoQuorum       = ErrorCause("no_quorum")
)

type DistSyncError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *DistSyncError) Error() string {
	return fmt.Sprintf("distsync: %s: %s", e.Cause, e.Message)
}

func (e *DistSyncError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *DistSyncError) IsRetryable() bool { return e.Retryable }

func (e *DistSyncError) Is(target error) bool {
	other, ok := target.(*DistSyncError)
	if !ok {
		return false
	}
	return other.Cause == e.Cause
}

var _ failure.ClassifiedError = (*DistSyncError)(nil)

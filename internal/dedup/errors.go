package dedup

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseBackendFailure     = ErrorCause("backend_failure")
	ErrCauseMissingFingerprint = ErrorCause("missing_fingerprint")
)

// DedupError reports failures in the dedup Check pipeline itself
// (store lookups, canonical-map persistence) — not duplicate verdicts,
// which are an ordinary successful return value.
type DedupError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *DedupError) Error() string {
	return fmt.Sprintf("dedup: %s: %s", e.Cause, e.Message)
}

func (e *DedupError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *DedupError) IsRetryable() bool { return e.Retryable }

func (e *DedupError) Is(target error) bool {
	_, ok := target.(*DedupError)
	return ok
}

var _ failure.ClassifiedError = (*DedupError)(nil)

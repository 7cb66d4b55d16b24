package fingerprint

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseEmptyContent  = ErrorCause("empty_content")
	ErrCauseParseFailed   = ErrorCause("parse_failed")
)

type FingerprintError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("fingerprint: %s: %s", e.Cause, e.Message)
}

func (e *FingerprintError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FingerprintError) IsRetryable() bool {
	return e.Retryable
}

func (e *FingerprintError) Is(target error) bool {
	_, ok := target.(*FingerprintError)
	return ok
}

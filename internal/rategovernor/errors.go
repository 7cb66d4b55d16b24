package rategovernor

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseDomainUnknown  = ErrorCause("domain_unknown")
	ErrCauseBackendFailure = ErrorCause("backend_failure")
)

// GovernorError is the package's ClassifiedError, mirroring
// pkg/retry.RetryError and internal/bloom.BloomError.
type GovernorError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *GovernorError) Error() string {
	return fmt.Sprintf("rategovernor: %s: %s", e.Cause, e.Message)
}

func (e *GovernorError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *GovernorError) IsRetryable() bool {
	return e.Retryable
}

func (e *GovernorError) Is(target error) bool {
	_, ok := target.(*GovernorError)
	return ok
}

// ErrDomainUnknown is returned whenever an operation is attempted
// against the empty-string domain; every other domain string gets
// default state created on first use.
func ErrDomainUnknown() *GovernorError {
	return &GovernorError{
		Message:   "domain must not be empty",
		Retryable: false,
		Cause:     ErrCauseDomainUnknown,
	}
}

package token

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseExpired      = ErrorCause("expired")
	ErrCauseSignature    = ErrorCause("signature")
	ErrCauseTypeMismatch = ErrorCause("type_mismatch")
	ErrCauseMalformed    = ErrorCause("malformed")
	ErrCauseBlacklisted  = ErrorCause("blacklisted")
)

// TokenError implements the closed error set spec.md §4.16 names for
// verify: "Expired | Signature | TypeMismatch | Malformed", plus
// Blacklisted for jti-in-blacklist failures.
type TokenError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token: %s: %s", e.Cause, e.Message)
}

func (e *TokenError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *TokenError) IsRetryable() bool { return e.Retryable }

func (e *TokenError) Is(target error) bool {
	other, ok := target.(*TokenError)
	if !ok {
		return false
	}
	return other.Cause == e.Cause
}

var _ failure.ClassifiedError = (*TokenError)(nil)

package renderer

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type ErrorCause string

const (
	ErrCauseLaunchFailed   = ErrorCause("launch_failed")
	ErrCausePoolExhausted  = ErrorCause("pool_exhausted")
	ErrCauseRenderFailed   = ErrorCause("render_failed")
	ErrCauseWaitTimeout    = ErrorCause("wait_timeout")
)

// RendererError is the package's ClassifiedError, mirroring
// internal/bloom.BloomError / internal/rategovernor.GovernorError.
type RendererError struct {
	Message   string
	Retryable bool
	Cause     ErrorCause
}

func (e *RendererError) Error() string {
	return fmt.Sprintf("renderer: %s: %s", e.Cause, e.Message)
}

func (e *RendererError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RendererError) IsRetryable() bool {
	return e.Retryable
}

func (e *RendererError) Is(target error) bool {
	_, ok := target.(*RendererError)
	return ok
}

package crawl

import (
	"fmt"

	"github.com/kraklabs/crawlcache-core/pkg/failure"
)

type CrawlErrorCause string

const (
	ErrCauseJobNotFound        CrawlErrorCause = "job not found"
	ErrCauseInvalidTransition  CrawlErrorCause = "invalid job state transition"
	ErrCauseAlreadyRunning     CrawlErrorCause = "job already running"
	ErrCauseNoSeedURLs         CrawlErrorCause = "no seed urls"
)

type CrawlError struct {
	Message string
	Cause   CrawlErrorCause
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl error: %s", e.Cause)
}

func (e *CrawlError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func errJobNotFound(jobID string) *CrawlError {
	return &CrawlError{Message: fmt.Sprintf("job %s not found", jobID), Cause: ErrCauseJobNotFound}
}

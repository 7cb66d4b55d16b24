package metadata

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the port every pipeline package records domain
// events through (fetches, errors, persisted artifacts). It is
// injected, never a global singleton, per spec.md §9's "global
// singletons -> injected configuration and handles" design note.
type MetadataSink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

var _ MetadataSink = (*Recorder)(nil)

// Recorder is the in-process MetadataSink: it keeps a bounded audit
// trail in memory (for post-run inspection / tests) and forwards every
// event to an operational zap.Logger. The recorder is the domain-event
// audit trail described in SPEC_FULL.md's ambient logging section; zap
// is the operational log every long-lived service also writes to.
type Recorder struct {
	mu     sync.Mutex
	logger *zap.Logger

	fetches   []FetchEvent
	errors    []ErrorRecord
	artifacts []ArtifactRecord
}

func NewRecorder(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	event := FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		crawlDepth:  crawlDepth,
	}

	r.mu.Lock()
	r.fetches = append(r.fetches, event)
	r.mu.Unlock()

	r.logger.Debug("fetch",
		zap.String("url", fetchUrl),
		zap.Int("http_status", httpStatus),
		zap.Duration("duration", duration),
		zap.String("content_type", contentType),
		zap.Int("retry_count", retryCount),
		zap.Int("crawl_depth", crawlDepth),
	)
}

func (r *Recorder) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
	r.RecordFetch(fetchUrl, httpStatus, duration, "", retryCount, -1)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, details string, attrs []Attribute) {
	record := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: details,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	r.mu.Lock()
	r.errors = append(r.errors, record)
	r.mu.Unlock()

	fields := make([]zap.Field, 0, len(attrs)+3)
	fields = append(fields,
		zap.String("package", packageName),
		zap.String("action", action),
		zap.Int("cause", int(cause)),
	)
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.logger.Warn(details, fields...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	record := ArtifactRecord{kind: kind, paths: path}

	r.mu.Lock()
	r.artifacts = append(r.artifacts, record)
	r.mu.Unlock()

	fields := make([]zap.Field, 0, len(attrs)+2)
	fields = append(fields, zap.String("kind", string(kind)), zap.String("path", path))
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.logger.Info("artifact", fields...)
}

// FetchCount, ErrorCount, ArtifactCount expose the in-memory audit
// trail's size for tests and post-run reporting.
func (r *Recorder) FetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fetches)
}

func (r *Recorder) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func (r *Recorder) ArtifactCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artifacts)
}

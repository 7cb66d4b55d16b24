package crawl

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kraklabs/crawlcache-core/internal/config"
)

// JobStatus is spec.md §3's crawl job lifecycle: Pending → Running →
// (Completed | Failed | Cancelled). Terminal states are immutable.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// PageOutcome is what a single worker fetch loop produced for one
// queue entry, reported through the job's result callback.
type PageOutcome string

const (
	OutcomeWritten        PageOutcome = "written"
	OutcomeDuplicate      PageOutcome = "duplicate"
	OutcomeRedirected     PageOutcome = "redirected"
	OutcomeDisallowed     PageOutcome = "disallowed_by_robots"
	OutcomeOutOfScope     PageOutcome = "out_of_scope"
	OutcomeFetchFailed    PageOutcome = "fetch_failed"
	OutcomeProcessFailed  PageOutcome = "process_failed"
)

// CrawlResult is spec.md §3's "Crawl result": one fetched/processed
// page's terminal outcome, reported to the job's ResultFunc callback
// and folded into Stats.
type CrawlResult struct {
	URL         string
	Outcome     PageOutcome
	StatusCode  int
	ContentHash string
	WritePath   string
	Depth       int
	Duration    time.Duration
	Err         error
}

// ResultFunc is the delivery callback spec.md §4.9 requires ("Results
// are delivered via callback + persisted"). Persistence itself
// happens through storage.Sink inside the worker pipeline; ResultFunc
// is the caller's hook for progress UIs, metrics, or a retention-window
// index.
type ResultFunc func(CrawlResult)

// Stats is the job's terminal, derived summary (the orchestrator's
// equivalent of metadata's unexported crawlStats, scoped to one job
// rather than process-wide).
type Stats struct {
	PagesWritten   int
	PagesDuplicate int
	PagesFailed    int
	PagesSkipped   int
	QueueDepth     int64
	Processing     int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Job is spec.md §3's "Crawl job": id, config, status, stats,
// timestamps.
type Job struct {
	ID     string
	Cfg    config.Config
	Result ResultFunc

	mu        sync.Mutex
	status    JobStatus
	stats     Stats
	lastProgressAt time.Time
	cancel    func()
	done      chan struct{}
}

func newJob(cfg config.Config, result ResultFunc) *Job {
	if result == nil {
		result = func(CrawlResult) {}
	}
	return &Job{
		ID:     uuid.NewString(),
		Cfg:    cfg,
		Result: result,
		status: JobPending,
		done:   make(chan struct{}),
	}
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}

// setStatus enforces the terminal-states-are-immutable invariant:
// once a job reaches a terminal status, further transitions are
// no-ops.
func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.terminal() {
		return
	}
	j.status = s
	if s.terminal() {
		j.stats.FinishedAt = time.Now()
	}
}

func (j *Job) recordOutcome(o PageOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastProgressAt = time.Now()
	switch o {
	case OutcomeWritten:
		j.stats.PagesWritten++
	case OutcomeDuplicate, OutcomeRedirected:
		j.stats.PagesDuplicate++
	case OutcomeFetchFailed, OutcomeProcessFailed:
		j.stats.PagesFailed++
	case OutcomeDisallowed, OutcomeOutOfScope:
		j.stats.PagesSkipped++
	}
}

func (j *Job) totalPages() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats.PagesWritten + j.stats.PagesDuplicate + j.stats.PagesFailed + j.stats.PagesSkipped
}

func (j *Job) progressSince() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastProgressAt.IsZero() {
		return time.Since(j.stats.StartedAt)
	}
	return time.Since(j.lastProgressAt)
}

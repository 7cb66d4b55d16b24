package crawl

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kraklabs/crawlcache-core/internal/bloom"
	"github.com/kraklabs/crawlcache-core/internal/config"
	"github.com/kraklabs/crawlcache-core/internal/dedup"
	"github.com/kraklabs/crawlcache-core/internal/distcache"
	"github.com/kraklabs/crawlcache-core/internal/metadata"
	"github.com/kraklabs/crawlcache-core/internal/queue"
	"github.com/kraklabs/crawlcache-core/internal/rategovernor"
)

const (
	// monitorInterval is spec.md §4.9's "monitor loop every 5 s".
	monitorInterval = 5 * time.Second

	// progressTimeout is spec.md §4.9's "60 s elapsed without progress".
	progressTimeout = 60 * time.Second

	// bloomCapacity/bloomEpsilon size the process-wide seen-set (C1).
	bloomCapacity = 1_000_000
	bloomEpsilon  = 0.001

	// defaultDomainRPS/defaultDomainBurst seed the distributed rate
	// governor (C2) before any per-domain robots crawl-delay override
	// is learned.
	defaultDomainRPS   = 1.0
	defaultDomainBurst = 3

	// dedupClusterTTL bounds how long the canonical cluster map (C8,
	// distcache-backed) survives without being refreshed.
	dedupClusterTTL = 7 * 24 * time.Hour

	// backoffInitialDelay/backoffMaxDelay size the cool-down the
	// Fetcher's per-host circuit breaker imposes on the Rate Governor
	// once a domain starts tripping (spec.md §4.5/§4.2 combined).
	backoffInitialDelay = 30 * time.Second
	backoffMaxDelay     = 15 * time.Minute
)

// Orchestrator generalizes the teacher's single-goroutine scheduler
// loop into a job/worker-pool model (spec.md §4.9): CreateJob registers
// a job under a fresh id; StartJob gives it its own frontier and
// launches a WorkerPool plus a monitor goroutine that decides when the
// job is done.
// Bloom filter, rate governor, and the dedup canonical-cluster map are
// process-wide: two jobs crawling overlapping hosts share politeness
// state and duplicate detection, matching the teacher's single-process
// deployment model generalized to many concurrent jobs.
type Orchestrator struct {
	redisClient  goredis.UniversalClient
	metadataSink metadata.MetadataSink

	filter   *bloom.Filter
	governor rategovernor.Governor
	backoff  *rategovernor.Backoff
	dedupEng *dedup.Engine

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewOrchestrator(redisClient goredis.UniversalClient, metadataSink metadata.MetadataSink) (*Orchestrator, *CrawlError) {
	filter, bloomErr := bloom.New(bloomCapacity, bloomEpsilon)
	if bloomErr != nil {
		return nil, &CrawlError{Message: bloomErr.Error(), Cause: ErrCauseNoSeedURLs}
	}

	governor := rategovernor.NewDistributedGovernor(redisClient, defaultDomainRPS, defaultDomainBurst)
	backoff := rategovernor.NewBackoff(backoffInitialDelay, backoffMaxDelay)

	clusterCache := distcache.New(redisClient, "dedup", distcache.FormatJSON)
	store := dedup.NewDistStore(context.Background(), clusterCache, dedupClusterTTL)
	dedupEng := dedup.NewEngine(dedup.DefaultPolicy(), store)

	return &Orchestrator{
		redisClient:  redisClient,
		metadataSink: metadataSink,
		filter:       filter,
		governor:     governor,
		backoff:      backoff,
		dedupEng:     dedupEng,
		jobs:         make(map[string]*Job),
	}, nil
}

// CreateJob assigns the job an id and registers it as Pending, per
// spec.md §3's "Crawl job: id, config ..., status ∈ {Pending, ...}".
// Its priority frontier (keyed by job id so concurrent jobs never share
// queue state) is created by StartJob.
func (o *Orchestrator) CreateJob(cfg config.Config, result ResultFunc) (*Job, *CrawlError) {
	if len(cfg.SeedURLs()) == 0 {
		return nil, &CrawlError{Message: "job requires at least one seed URL", Cause: ErrCauseNoSeedURLs}
	}

	job := newJob(cfg, result)

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	return job, nil
}

func (o *Orchestrator) getJob(jobID string) (*Job, *CrawlError) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil, errJobNotFound(jobID)
	}
	return job, nil
}

// StartJob seeds the frontier at High priority, launches the worker
// pool, and starts the monitor goroutine. It returns once the job has
// transitioned to Running; the crawl itself continues in the
// background until the monitor observes a termination condition.
func (o *Orchestrator) StartJob(ctx context.Context, jobID string) *CrawlError {
	job, err := o.getJob(jobID)
	if err != nil {
		return err
	}

	job.mu.Lock()
	if job.status != JobPending {
		job.mu.Unlock()
		return &CrawlError{Message: "job is not pending", Cause: ErrCauseAlreadyRunning}
	}
	job.status = JobRunning
	job.stats.StartedAt = time.Now()
	job.lastProgressAt = job.stats.StartedAt
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	job.mu.Unlock()

	governor := rategovernor.WithBackoff(o.governor, o.backoff)
	q := queue.New(o.redisClient, o.filter, governor, job.Cfg.MaxDepth(), "crawl:"+job.ID)

	pool, poolErr := newWorkerPool(job, q, o.dedupEng, o.metadataSink, o.backoff)
	if poolErr != nil {
		job.setStatus(JobFailed)
		close(job.done)
		return poolErr
	}

	if seedErr := seedFrontier(jobCtx, q, job.Cfg); seedErr != nil {
		job.setStatus(JobFailed)
		close(job.done)
		return seedErr
	}

	var wg sync.WaitGroup
	pool.Run(jobCtx, &wg, job.Cfg.Concurrency())

	go o.monitor(jobCtx, job, q, &wg)

	return nil
}

// CancelJob requests cooperative shutdown: the job's context is
// cancelled, every worker fetch loop exits at its next lease/process
// boundary, and the monitor marks the job Cancelled.
func (o *Orchestrator) CancelJob(jobID string) *CrawlError {
	job, err := o.getJob(jobID)
	if err != nil {
		return err
	}
	job.mu.Lock()
	cancel := job.cancel
	job.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (o *Orchestrator) Stats(jobID string) (Stats, *CrawlError) {
	job, err := o.getJob(jobID)
	if err != nil {
		return Stats{}, err
	}
	return job.Stats(), nil
}

func (o *Orchestrator) Status(jobID string) (JobStatus, *CrawlError) {
	job, err := o.getJob(jobID)
	if err != nil {
		return "", err
	}
	return job.Status(), nil
}

// Wait blocks until the job reaches a terminal status.
func (o *Orchestrator) Wait(jobID string) *CrawlError {
	job, err := o.getJob(jobID)
	if err != nil {
		return err
	}
	<-job.done
	return nil
}

// monitor implements spec.md §4.9's termination conditions: "all
// queues empty AND processing set empty, OR max_pages reached, OR 60 s
// elapsed without progress, OR cancellation requested."
func (o *Orchestrator) monitor(ctx context.Context, job *Job, q *queue.Queue, wg *sync.WaitGroup) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	finish := func(status JobStatus) {
		job.setStatus(status)
		job.mu.Lock()
		if job.cancel != nil {
			job.cancel()
		}
		job.mu.Unlock()
		wg.Wait()
		close(job.done)
	}

	for {
		select {
		case <-ctx.Done():
			finish(JobCancelled)
			return
		case <-ticker.C:
			depth, depthErr := q.Depth(ctx)
			processing, procErr := q.ProcessingCount(ctx)
			if depthErr == nil && procErr == nil {
				job.mu.Lock()
				job.stats.QueueDepth = depth
				job.stats.Processing = processing
				job.mu.Unlock()
			}

			maxPages := job.Cfg.MaxPages()
			if maxPages > 0 && job.totalPages() >= maxPages {
				finish(JobCompleted)
				return
			}

			if depthErr == nil && procErr == nil && depth == 0 && processing == 0 && job.totalPages() > 0 {
				finish(JobCompleted)
				return
			}

			if job.progressSince() > progressTimeout {
				finish(JobCompleted)
				return
			}
		}
	}
}

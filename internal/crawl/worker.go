package crawl

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/assets"
	"github.com/kraklabs/crawlcache-core/internal/build"
	"github.com/kraklabs/crawlcache-core/internal/config"
	"github.com/kraklabs/crawlcache-core/internal/dedup"
	"github.com/kraklabs/crawlcache-core/internal/extractor"
	"github.com/kraklabs/crawlcache-core/internal/fetcher"
	"github.com/kraklabs/crawlcache-core/internal/fingerprint"
	"github.com/kraklabs/crawlcache-core/internal/mdconvert"
	"github.com/kraklabs/crawlcache-core/internal/metadata"
	"github.com/kraklabs/crawlcache-core/internal/normalize"
	"github.com/kraklabs/crawlcache-core/internal/queue"
	"github.com/kraklabs/crawlcache-core/internal/rategovernor"
	"github.com/kraklabs/crawlcache-core/internal/robots"
	"github.com/kraklabs/crawlcache-core/internal/sanitizer"
	"github.com/kraklabs/crawlcache-core/internal/storage"
	"github.com/kraklabs/crawlcache-core/pkg/hashutil"
	"github.com/kraklabs/crawlcache-core/pkg/retry"
	"github.com/kraklabs/crawlcache-core/pkg/timeutil"
	"github.com/kraklabs/crawlcache-core/pkg/urlutil"
)

// maxAssetSizeByte bounds a single downloaded asset; spec.md doesn't
// expose this as a job-level knob, so it is a package constant rather
// than a config field.
const maxAssetSizeByte = 10 * 1024 * 1024

// leaseWait is how long a single Lease call blocks for a candidate
// before a worker loop iterates (checking ctx.Done and retrying).
const leaseWait = 2 * time.Second

// idleBackoff is how long a worker sleeps after an empty lease, so an
// empty frontier doesn't spin workers at 100% CPU.
const idleBackoff = 250 * time.Millisecond

// WorkerPool is spec.md §4.9's "Workers run in a pool sized ≈ CPU
// count; each worker runs concurrent_crawls_per_worker parallel fetch
// loops" — generalized here to `concurrency` total fetch loops (the
// caller picks how many, typically runtime.NumCPU()*N), each running
// the teacher's exact pipeline shape: admit → fetch → extract →
// sanitize → fingerprint → dedup → convert → assets → normalize →
// write.
type WorkerPool struct {
	job          *Job
	queue        *queue.Queue
	robot        *robots.CachedRobot
	fetcher      fetcher.HtmlFetcher
	extractor    extractor.DomExtractor
	sanitizer    sanitizer.HtmlSanitizer
	converter    *mdconvert.StrictConversionRule
	normalizer   normalize.MarkdownConstraint
	sink         storage.LocalSink
	dedupEng     *dedup.Engine
	metadataSink metadata.MetadataSink
	httpClient   *http.Client

	retryParam   retry.RetryParam
	outputDir    string
	userAgent    string
	allowedHosts map[string]struct{}
	allowedPaths []string
}

func newWorkerPool(job *Job, q *queue.Queue, dedupEng *dedup.Engine, metadataSink metadata.MetadataSink, backoff *rategovernor.Backoff) (*WorkerPool, *CrawlError) {
	cfg := job.Cfg

	robot := robots.NewCachedRobot(metadataSink)
	robot.Init(cfg.UserAgent())

	retryBackoff := timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration())
	retryParam := retry.NewRetryParam(cfg.BaseDelay(), cfg.Jitter(), cfg.RandomSeed(), cfg.MaxAttempt(), retryBackoff)

	httpClient := &http.Client{Timeout: cfg.Timeout()}

	return &WorkerPool{
		job:          job,
		queue:        q,
		robot:        &robot,
		fetcher:      fetcher.NewHtmlFetcherWithBackoff(metadataSink, backoff),
		extractor:    extractor.NewDomExtractor(metadataSink, extractorParamFromConfig(cfg)),
		sanitizer:    sanitizer.NewHTMLSanitizer(metadataSink),
		converter:    mdconvert.NewRule(metadataSink),
		normalizer:   normalize.NewMarkdownConstraint(metadataSink),
		sink:         storage.NewLocalSink(metadataSink),
		dedupEng:     dedupEng,
		metadataSink: metadataSink,
		httpClient:   httpClient,
		retryParam:   retryParam,
		outputDir:    cfg.OutputDir(),
		userAgent:    cfg.UserAgent(),
		allowedHosts: cfg.AllowedHosts(),
		allowedPaths: cfg.AllowedPathPrefix(),
	}, nil
}

func extractorParamFromConfig(cfg config.Config) extractor.ExtractParam {
	p := extractor.DefaultExtractParam()
	if cfg.LinkDensityThreshold() > 0 {
		p.LinkDensityThreshold = cfg.LinkDensityThreshold()
	}
	if cfg.BodySpecificityBias() > 0 {
		p.BodySpecificityBias = cfg.BodySpecificityBias()
	}
	return p
}

// seedFrontier enqueues the job's seed URLs at High priority, per
// spec.md §4.9's "On start: ... enqueue seeds at High."
func seedFrontier(ctx context.Context, q *queue.Queue, cfg config.Config) *CrawlError {
	for _, seed := range cfg.SeedURLs() {
		entry := queue.Entry{
			URL:      seed,
			Priority: queue.PriorityHigh,
			Depth:    0,
		}
		if _, err := q.Enqueue(ctx, entry); err != nil && err.Retryable {
			return &CrawlError{Message: err.Error(), Cause: ErrCauseNoSeedURLs}
		}
	}
	return nil
}

// Run launches `concurrency` fetch-loop goroutines plus the queue's
// own lease-recovery loop (spec.md §4.3's "Recovery loop: every 60 s
// scan processing set").
func (wp *WorkerPool) Run(ctx context.Context, wg *sync.WaitGroup, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		wp.queue.RunRecovery(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.loop(ctx)
		}()
	}
}

func (wp *WorkerPool) loop(ctx context.Context) {
	// assets.LocalResolver keeps unsynchronized dedup maps (see
	// internal/assets/resolver.go); the teacher never ran it from more
	// than one goroutine, so each fetch loop gets its own instance
	// instead of adding locking to the adapted package.
	resolver := assets.NewLocalResolver(wp.metadataSink, wp.httpClient, wp.userAgent)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entry, err := wp.queue.Lease(ctx, leaseWait)
		if err != nil {
			time.Sleep(idleBackoff)
			continue
		}
		if entry == nil {
			time.Sleep(idleBackoff)
			continue
		}

		result := wp.process(ctx, &resolver, *entry)
		wp.job.recordOutcome(result.Outcome)
		wp.job.Result(result)

		switch result.Outcome {
		case OutcomeFetchFailed, OutcomeProcessFailed:
			wp.queue.Fail(ctx, *entry, string(result.Outcome))
		default:
			wp.queue.Complete(ctx, *entry)
		}
	}
}

// process runs the full per-URL pipeline: admit → fetch → extract →
// sanitize → fingerprint → dedup → convert → assets → normalize →
// write, discovering and enqueuing new links along the way.
func (wp *WorkerPool) process(ctx context.Context, resolver *assets.LocalResolver, entry queue.Entry) CrawlResult {
	start := time.Now()
	res := CrawlResult{URL: entry.URL.String(), Depth: entry.Depth}

	if !wp.inScope(entry.URL) {
		res.Outcome = OutcomeOutOfScope
		res.Duration = time.Since(start)
		return res
	}

	decision, robotsErr := wp.robot.Decide(entry.URL)
	if robotsErr != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = robotsErr
		res.Duration = time.Since(start)
		return res
	}
	if !decision.Allowed {
		res.Outcome = OutcomeDisallowed
		res.Duration = time.Since(start)
		return res
	}

	fetchParam := fetcher.NewFetchParam(entry.URL, wp.userAgent)
	fetchResult, fetchErr := wp.fetcher.Fetch(ctx, entry.Depth, fetchParam, wp.retryParam)
	if fetchErr != nil {
		res.Outcome = OutcomeFetchFailed
		res.Err = fetchErr
		res.StatusCode = fetchResult.Code()
		res.Duration = time.Since(start)
		return res
	}
	res.StatusCode = fetchResult.Code()

	extractResult, extractErr := wp.extractor.Extract(entry.URL, fetchResult.Body())
	if extractErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = extractErr
		res.Duration = time.Since(start)
		return res
	}

	sanitizedDoc, sanitizeErr := wp.sanitizer.Sanitize(extractResult.ContentNode)
	if sanitizeErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = sanitizeErr
		res.Duration = time.Since(start)
		return res
	}

	wp.enqueueDiscovered(ctx, entry, sanitizedDoc.GetDiscoveredURLs())

	fp, fpErr := fingerprint.Compute(entry.URL.String(), fetchResult.Body(), wp.dedupEng.Index())
	if fpErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = fpErr
		res.Duration = time.Since(start)
		return res
	}

	canonical := urlutil.Canonicalize(entry.URL)
	verdict, dedupErr := wp.dedupEng.Check(entry.URL.String(), canonical.String(), fp, dedup.Metadata{})
	if dedupErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = dedupErr
		res.Duration = time.Since(start)
		return res
	}
	if verdict.Action == dedup.ActionReject {
		res.Outcome = OutcomeDuplicate
		res.Duration = time.Since(start)
		return res
	}
	if verdict.Action == dedup.ActionRedirect {
		res.Outcome = OutcomeRedirected
		res.Duration = time.Since(start)
		return res
	}

	conversionResult, convertErr := wp.converter.Convert(sanitizedDoc)
	if convertErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = convertErr
		res.Duration = time.Since(start)
		return res
	}

	resolveParam := assets.NewResolveParam(wp.outputDir, maxAssetSizeByte)
	assetfulDoc, assetErr := resolver.Resolve(ctx, entry.URL, conversionResult, resolveParam, wp.retryParam)
	if assetErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = assetErr
		res.Duration = time.Since(start)
		return res
	}

	normalizeParam := normalize.NewNormalizeParam(build.FullVersion(), fetchResult.FetchedAt(), hashutil.HashAlgoSHA256, entry.Depth, wp.allowedPaths)
	normalizedDoc, normalizeErr := wp.normalizer.Normalize(entry.URL, assetfulDoc, normalizeParam)
	if normalizeErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = normalizeErr
		res.Duration = time.Since(start)
		return res
	}

	writeResult, writeErr := wp.sink.Write(wp.outputDir, normalizedDoc, hashutil.HashAlgoSHA256)
	if writeErr != nil {
		res.Outcome = OutcomeProcessFailed
		res.Err = writeErr
		res.Duration = time.Since(start)
		return res
	}

	res.Outcome = OutcomeWritten
	res.ContentHash = writeResult.ContentHash()
	res.WritePath = writeResult.Path()
	res.Duration = time.Since(start)
	return res
}

// enqueueDiscovered admits every URL the sanitizer surfaced: in-scope
// host/path, robots-allowed, one depth deeper than the page they were
// found on.
func (wp *WorkerPool) enqueueDiscovered(ctx context.Context, parent queue.Entry, discovered []url.URL) {
	for _, u := range discovered {
		if !wp.inScope(u) {
			continue
		}
		decision, err := wp.robot.Decide(u)
		if err != nil || !decision.Allowed {
			continue
		}
		entry := queue.Entry{
			URL:      u,
			Priority: queue.PriorityMedium,
			Depth:    parent.Depth + 1,
			Referrer: parent.URL.String(),
		}
		wp.queue.Enqueue(ctx, entry)
	}
}

// inScope applies the host allow-list and path-prefix restriction a
// Scheduler would otherwise enforce before a URL ever reaches the
// frontier (spec.md §4.4's robots gate handles policy; this is the
// operator-configured crawl boundary from spec.md §3's "Crawl job:
// ..., config (seed URLs, allowed domains, ... include/exclude
// regexes)").
func (wp *WorkerPool) inScope(u url.URL) bool {
	if len(wp.allowedHosts) > 0 {
		if _, ok := wp.allowedHosts[strings.ToLower(u.Hostname())]; !ok {
			return false
		}
	}
	if len(wp.allowedPaths) == 0 {
		return true
	}
	for _, prefix := range wp.allowedPaths {
		if strings.HasPrefix(u.Path, prefix) {
			return true
		}
	}
	return false
}

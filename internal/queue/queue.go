package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kraklabs/crawlcache-core/internal/bloom"
	"github.com/kraklabs/crawlcache-core/internal/rategovernor"
	"github.com/kraklabs/crawlcache-core/pkg/urlutil"
)

/*
Queue is the five-tier, leased, crash-recoverable priority frontier of
spec.md §4.3. It generalizes the teacher's single-process
frontier.FIFOQueue/frontier.Set into a Redis-backed structure: every
mutation (tier membership, processing lease, retry/fail bookkeeping)
goes through go-redis sorted sets and hashes per spec.md §5's "Shared-
resource policy" for queue state — atomic score-based moves, set
add/remove — instead of an in-process mutex.

Deduplication is two-layered, matching spec.md §4.3's enqueue pipeline:
a bloom.Filter for the fast probabilistic check, backed by a Redis set
(the authoritative "visited" set) so AlreadySeen never regresses on a
bloom false positive turning out true, and never gives a false
AlreadySeen the bloom filter can't (the filter only ever says "maybe
seen"; the visited set is asked only when the filter says maybe).
*/
type Queue struct {
	client   goredis.UniversalClient
	bloom    *bloom.Filter
	governor rategovernor.Governor
	maxDepth int
	prefix   string
}

func New(client goredis.UniversalClient, filter *bloom.Filter, governor rategovernor.Governor, maxDepth int, prefix string) *Queue {
	if prefix == "" {
		prefix = "queue"
	}
	return &Queue{client: client, bloom: filter, governor: governor, maxDepth: maxDepth, prefix: prefix}
}

func (q *Queue) tierKey(p Priority) string {
	return fmt.Sprintf("%s:tier:%s", q.prefix, p)
}

func (q *Queue) processingKey() string {
	return fmt.Sprintf("%s:processing", q.prefix)
}

func (q *Queue) failedKey() string {
	return fmt.Sprintf("%s:failed", q.prefix)
}

func (q *Queue) visitedKey() string {
	return fmt.Sprintf("%s:visited", q.prefix)
}

func normalizedKey(e Entry) string {
	n := urlutil.NormalizeCrawlTarget(e.URL)
	return n.String()
}

// Enqueue normalizes, bloom-checks, visited-checks, then score-inserts
// the entry into its priority tier. Depth cap is enforced here, not at
// lease time, per spec.md §4.3.
func (q *Queue) Enqueue(ctx context.Context, e Entry) (EnqueueResult, *QueueError) {
	if q.maxDepth > 0 && e.Depth > q.maxDepth {
		return AlreadySeen, &QueueError{Message: "depth cap exceeded", Retryable: false, Cause: ErrCauseDepthExceeded}
	}

	e.URL = urlutil.NormalizeCrawlTarget(e.URL)
	key := e.URL.String()

	if q.bloom != nil && q.bloom.Seen(key) {
		isMember, err := q.client.SIsMember(ctx, q.visitedKey(), key).Result()
		if err != nil {
			return AlreadySeen, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
		}
		if isMember {
			return AlreadySeen, nil
		}
	}

	added, err := q.client.SAdd(ctx, q.visitedKey(), key).Result()
	if err != nil {
		return AlreadySeen, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if added == 0 {
		return AlreadySeen, nil
	}
	if q.bloom != nil {
		q.bloom.Add(key)
	}

	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = time.Now()
	}

	payload, jsonErr := json.Marshal(e)
	if jsonErr != nil {
		return AlreadySeen, &QueueError{Message: jsonErr.Error(), Retryable: false, Cause: ErrCauseBackendFailure}
	}

	score := float64(e.DiscoveredAt.UnixNano())
	if err := q.client.ZAdd(ctx, q.tierKey(e.Priority), goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return AlreadySeen, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}

	return Inserted, nil
}

// leaseScript atomically pops the lowest-scored member of a tier and
// pushes it into the processing hash, so a crash between the ZPOPMIN
// and the HSET never loses the entry to neither set. The hash is keyed
// by the entry's normalized URL (ARGV[2]), not the raw ZSET member
// (ARGV[1]) — Complete/Fail only know the Entry, not the exact JSON
// blob the tier ZSET stored it under, so they must look it up the same
// way it was written.
var leaseScript = goredis.NewScript(`
local tierKey = KEYS[1]
local processingKey = KEYS[2]
local member = ARGV[1]
local normalizedKey = ARGV[2]
local leaseValue = ARGV[3]

local removed = redis.call("ZREM", tierKey, member)
if removed == 1 then
	redis.call("HSET", processingKey, normalizedKey, leaseValue)
end
return removed
`)

// Lease scans tiers from Critical downward. For the first candidate in
// each tier it consults the Rate Governor; a denied candidate is moved
// to the Deferred tier with a future score (retry-delay 5 min) and the
// scan continues to the next candidate/tier; an allowed candidate is
// atomically moved from its tier into the processing set with a lease
// and returned.
func (q *Queue) Lease(ctx context.Context, maxWait time.Duration) (*Entry, *QueueError) {
	deadline := time.Now().Add(maxWait)
	for {
		for _, tier := range tiers {
			entry, raw, ok, err := q.peek(ctx, tier)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			domain := entry.URL.Hostname()
			allowed := true
			if q.governor != nil {
				a, gerr := q.governor.TryAcquire(domain)
				if gerr != nil {
					return nil, &QueueError{Message: gerr.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
				}
				allowed = a
			}

			if !allowed {
				if err := q.deferEntry(ctx, tier, raw, entry); err != nil {
					return nil, err
				}
				continue
			}

			leased := processingEntry{Entry: entry, FromTier: tier, LeasedAt: time.Now()}
			leasedPayload, _ := json.Marshal(leased)

			removed, err := leaseScript.Run(ctx, q.client, []string{q.tierKey(tier), q.processingKey()}, raw, normalizedKey(entry), string(leasedPayload)).Int()
			if err != nil {
				return nil, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
			}
			if removed == 0 {
				// Another worker already took this candidate; retry the scan.
				continue
			}
			return &entry, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (q *Queue) peek(ctx context.Context, tier Priority) (Entry, string, bool, *QueueError) {
	results, err := q.client.ZRangeWithScores(ctx, q.tierKey(tier), 0, 0).Result()
	if err != nil {
		return Entry{}, "", false, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if len(results) == 0 {
		return Entry{}, "", false, nil
	}
	raw := results[0].Member.(string)
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, "", false, &QueueError{Message: err.Error(), Retryable: false, Cause: ErrCauseBackendFailure}
	}
	return e, raw, true, nil
}

func (q *Queue) deferEntry(ctx context.Context, fromTier Priority, raw string, e Entry) *QueueError {
	removed, err := q.client.ZRem(ctx, q.tierKey(fromTier), raw).Result()
	if err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if removed == 0 {
		return nil
	}
	payload, _ := json.Marshal(e)
	score := float64(time.Now().Add(deferredRetryDelay).UnixNano())
	if err := q.client.ZAdd(ctx, q.tierKey(PriorityDeferred), goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// Complete removes an entry from the processing set after successful
// handling.
func (q *Queue) Complete(ctx context.Context, e Entry) *QueueError {
	if err := q.client.HDel(ctx, q.processingKey(), normalizedKey(e)).Err(); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// Fail removes e from processing and either reinserts it at Low
// priority with a retry-scaled score, or — once the incremented
// RetryCount reaches maxRetry — promotes it to the failed set with reason.
func (q *Queue) Fail(ctx context.Context, e Entry, reason string) *QueueError {
	if err := q.client.HDel(ctx, q.processingKey(), normalizedKey(e)).Err(); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}

	e.RetryCount++
	if e.RetryCount < maxRetry {
		payload, _ := json.Marshal(e)
		score := float64(time.Now().Add(time.Duration(60*e.RetryCount) * time.Second).UnixNano())
		if err := q.client.ZAdd(ctx, q.tierKey(PriorityLow), goredis.Z{Score: score, Member: string(payload)}).Err(); err != nil {
			return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
		}
		return nil
	}

	failed := failedEntry{Entry: e, Reason: reason}
	payload, _ := json.Marshal(failed)
	if err := q.client.HSet(ctx, q.failedKey(), normalizedKey(e), string(payload)).Err(); err != nil {
		return &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// RunRecovery scans the processing set every recoveryInterval and
// returns to its original tier any entry whose lease exceeds leaseTTL
// (spec.md S4). Blocks until ctx is cancelled, draining its local
// in-flight tick before returning per spec.md §5's shutdown contract.
func (q *Queue) RunRecovery(ctx context.Context) {
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.recoverOnce(context.Background())
			return
		case <-ticker.C:
			q.recoverOnce(ctx)
		}
	}
}

func (q *Queue) recoverOnce(ctx context.Context) {
	all, err := q.client.HGetAll(ctx, q.processingKey()).Result()
	if err != nil {
		return
	}
	now := time.Now()
	for member, raw := range all {
		var pe processingEntry
		if err := json.Unmarshal([]byte(raw), &pe); err != nil {
			continue
		}
		if now.Sub(pe.LeasedAt) <= leaseTTL {
			continue
		}
		payload, _ := json.Marshal(pe.Entry)
		score := float64(pe.Entry.DiscoveredAt.UnixNano())
		pipe := q.client.TxPipeline()
		pipe.HDel(ctx, q.processingKey(), member)
		pipe.ZAdd(ctx, q.tierKey(pe.FromTier), goredis.Z{Score: score, Member: string(payload)})
		pipe.Exec(ctx)
	}
}

// Depth returns the number of entries across all non-processing tiers,
// used by the orchestrator's monitor loop to detect queue drain.
func (q *Queue) Depth(ctx context.Context) (int64, *QueueError) {
	var total int64
	for _, tier := range tiers {
		n, err := q.client.ZCard(ctx, q.tierKey(tier)).Result()
		if err != nil {
			return 0, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
		}
		total += n
	}
	return total, nil
}

// ProcessingCount returns the size of the processing set.
func (q *Queue) ProcessingCount(ctx context.Context) (int64, *QueueError) {
	n, err := q.client.HLen(ctx, q.processingKey()).Result()
	if err != nil {
		return 0, &QueueError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return n, nil
}

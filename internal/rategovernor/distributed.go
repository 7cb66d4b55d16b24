package rategovernor

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

/*
DistributedGovernor implements the sliding-window algorithm shared
across every node in the crawl cluster: a Redis sorted set per domain
holding one member per accepted request, scored by its timestamp.
Admission trims the set to the current window then checks its
cardinality against burst — trim, count, and conditional insert all run
as one Lua script so concurrent callers from any node never race each
other into double-admitting past the limit (the "record_access is
idempotent" requirement in the spec).
*/
type DistributedGovernor struct {
	client       goredis.UniversalClient
	defaultRPS   float64
	defaultBurst int

	mu          sync.Mutex
	crawlDelays map[string]time.Duration
}

// admitScript: KEYS[1]=window zset, ARGV[1]=now (ms), ARGV[2]=window (ms),
// ARGV[3]=burst, ARGV[4]=member (unique per call). Trims entries older
// than the window, checks cardinality, and if under burst adds the new
// member and returns 1; else returns 0 without adding the member.
var admitScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count < burst then
	redis.call("ZADD", key, now, member)
	redis.call("PEXPIRE", key, window)
	return 1
end
return 0
`)

func NewDistributedGovernor(client goredis.UniversalClient, defaultRPS float64, defaultBurst int) *DistributedGovernor {
	return &DistributedGovernor{
		client:       client,
		defaultRPS:   defaultRPS,
		defaultBurst: defaultBurst,
		crawlDelays:  make(map[string]time.Duration),
	}
}

func (g *DistributedGovernor) windowKey(domain string) string {
	return fmt.Sprintf("rategovernor:window:%s", domain)
}

func (g *DistributedGovernor) window(domain string) time.Duration {
	g.mu.Lock()
	delay := g.crawlDelays[domain]
	g.mu.Unlock()

	rps := effectiveRPS(g.defaultRPS, delay)
	if rps <= 0 {
		rps = g.defaultRPS
	}
	seconds := float64(g.defaultBurst) / rps
	return time.Duration(seconds * float64(time.Second))
}

func (g *DistributedGovernor) TryAcquire(domain string) (bool, *GovernorError) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false, ErrDomainUnknown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	window := g.window(domain)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())

	res, err := admitScript.Run(ctx, g.client, []string{g.windowKey(domain)},
		now.UnixMilli(), window.Milliseconds(), g.defaultBurst, member).Int()
	if err != nil {
		return false, &GovernorError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return res == 1, nil
}

func (g *DistributedGovernor) Wait(domain string, maxWait time.Duration) (time.Duration, *GovernorError) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return 0, ErrDomainUnknown()
	}

	start := time.Now()
	deadline := start.Add(maxWait)
	backoff := 25 * time.Millisecond

	for {
		allowed, gerr := g.TryAcquire(domain)
		if gerr != nil {
			return time.Since(start), gerr
		}
		if allowed {
			return time.Since(start), nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return time.Since(start), &GovernorError{
				Message:   "max wait exceeded before admission",
				Retryable: true,
				Cause:     ErrCauseBackendFailure,
			}
		}
		time.Sleep(backoff)
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func (g *DistributedGovernor) SetCrawlDelay(domain string, delay time.Duration) *GovernorError {
	domain = normalizeDomain(domain)
	if domain == "" {
		return ErrDomainUnknown()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.crawlDelays[domain] = delay
	return nil
}

package rategovernor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

/*
LocalGovernor implements the token-bucket algorithm for single-process
admission control. Each domain gets its own *rate.Limiter; a
crawl-delay override recomputes that limiter's Limit in place rather
than swapping the limiter out, so in-flight reservations stay valid.
*/
type LocalGovernor struct {
	mu           sync.Mutex
	limiters     map[string]*domainLimiter
	defaultRPS   float64
	defaultBurst int
}

type domainLimiter struct {
	limiter    *rate.Limiter
	crawlDelay time.Duration
	configured float64
}

func NewLocalGovernor(defaultRPS float64, defaultBurst int) *LocalGovernor {
	return &LocalGovernor{
		limiters:     make(map[string]*domainLimiter),
		defaultRPS:   defaultRPS,
		defaultBurst: defaultBurst,
	}
}

func (g *LocalGovernor) getOrCreate(domain string) *domainLimiter {
	if dl, ok := g.limiters[domain]; ok {
		return dl
	}
	dl := &domainLimiter{
		configured: g.defaultRPS,
		limiter:    rate.NewLimiter(rate.Limit(g.defaultRPS), g.defaultBurst),
	}
	g.limiters[domain] = dl
	return dl
}

func (g *LocalGovernor) TryAcquire(domain string) (bool, *GovernorError) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return false, ErrDomainUnknown()
	}

	g.mu.Lock()
	dl := g.getOrCreate(domain)
	g.mu.Unlock()

	return dl.limiter.Allow(), nil
}

func (g *LocalGovernor) Wait(domain string, maxWait time.Duration) (time.Duration, *GovernorError) {
	domain = normalizeDomain(domain)
	if domain == "" {
		return 0, ErrDomainUnknown()
	}

	g.mu.Lock()
	dl := g.getOrCreate(domain)
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	defer cancel()

	start := time.Now()
	if err := dl.limiter.Wait(ctx); err != nil {
		return time.Since(start), &GovernorError{
			Message:   "max wait exceeded before admission",
			Retryable: true,
			Cause:     ErrCauseBackendFailure,
		}
	}
	return time.Since(start), nil
}

func (g *LocalGovernor) SetCrawlDelay(domain string, delay time.Duration) *GovernorError {
	domain = normalizeDomain(domain)
	if domain == "" {
		return ErrDomainUnknown()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	dl := g.getOrCreate(domain)
	dl.crawlDelay = delay

	rps := effectiveRPS(dl.configured, dl.crawlDelay)
	dl.limiter.SetLimit(rate.Limit(rps))
	return nil
}

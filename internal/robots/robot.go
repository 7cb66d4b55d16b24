package robots

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/metadata"
	"github.com/kraklabs/crawlcache-core/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.

CachedRobot layers two caches: RobotsFetcher's raw-response cache.Cache
(tier one, avoids re-fetching robots.txt for a host already seen this
crawl) and an in-process ruleSet cache keyed by host (tier two, avoids
re-mapping the same response against this robot's user agent on every
Decide call).
*/
type CachedRobot struct {
	fetcher   *RobotsFetcher
	sink      metadata.MetadataSink
	userAgent string
	rules     *ruleCacheStore
}

// ruleCacheStore is a pointer type so CachedRobot, whose tests compare
// the zero value with ==, stays comparable.
type ruleCacheStore struct {
	mu     sync.RWMutex
	byHost map[string]ruleSet
}

func newRuleCacheStore() *ruleCacheStore {
	return &ruleCacheStore{byHost: make(map[string]ruleSet)}
}

func (s *ruleCacheStore) get(host string) (ruleSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.byHost[host]
	return rs, ok
}

func (s *ruleCacheStore) put(host string, rs ruleSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHost[host] = rs
}

func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{sink: sink}
}

// Init wires an in-memory robots.txt response cache as the tier-one
// store. InitWithCache lets a caller supply a different one (e.g.
// shared across a worker pool).
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.sink, userAgent, c)
	r.rules = newRuleCacheStore()
}

// Decide is the sole allow/disallow authority a Scheduler consults
// before a URL may enter the frontier: fetch (or reuse) the host's
// robots.txt, map it to a ruleSet for this robot's user agent, and
// evaluate path precedence (longest matching rule wins; ties favor
// Allow).
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	host := target.Host
	rs, ok := r.rules.get(host)
	if !ok {
		scheme := target.Scheme
		if scheme == "" {
			scheme = "https"
		}
		result, err := r.fetcher.Fetch(context.Background(), scheme, host)
		if err != nil {
			r.sink.RecordError(
				time.Now(),
				"robots",
				"CachedRobot.Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, target.String())},
			)
			return Decision{}, err
		}
		rs = MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
		r.rules.put(host, rs)
	}

	path := target.Path
	if path == "" {
		path = "/"
	}
	allowed, reason := evaluatePath(rs, path)
	decision := Decision{Url: target, Allowed: allowed, Reason: reason}
	if delay := rs.CrawlDelay(); delay != nil {
		decision.CrawlDelay = *delay
	}
	return decision, nil
}

// evaluatePath applies the longest-match-wins precedence rule, with
// ties resolved in favor of Allow.
func evaluatePath(rs ruleSet, path string) (bool, DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	bestAllow, bestDisallow := -1, -1
	for _, rule := range rs.AllowRules() {
		if matchesRobotsPattern(rule.Prefix(), path) && len(rule.Prefix()) > bestAllow {
			bestAllow = len(rule.Prefix())
		}
	}
	for _, rule := range rs.DisallowRules() {
		if matchesRobotsPattern(rule.Prefix(), path) && len(rule.Prefix()) > bestDisallow {
			bestDisallow = len(rule.Prefix())
		}
	}

	switch {
	case bestAllow == -1 && bestDisallow == -1:
		return true, NoMatchingRules
	case bestAllow >= bestDisallow:
		return true, AllowedByRobots
	default:
		return false, DisallowedByRobots
	}
}

// matchesRobotsPattern implements robots.txt pattern matching: "*"
// matches any run of characters, a trailing "$" anchors the match to
// the end of path, and the pattern is otherwise a prefix match anchored
// at path's start.
func matchesRobotsPattern(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if anchored {
		return pos == len(path)
	}
	return true
}

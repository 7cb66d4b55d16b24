package dedup

import (
	"context"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/distcache"
)

// DistStore persists Check's canonical-URL cluster map in distcache
// (C11) instead of process memory, so the map survives restarts and
// is shared across every orchestrator worker, per spec.md §4.8's
// "Canonical relationships are retained as cluster map when policy
// asks." Put has no error return (the Store interface is fire-and-
// forget by design), so a distcache write failure is dropped; Check's
// correctness only degrades to a missed dedup hit, never a crash.
type DistStore struct {
	ctx   context.Context
	cache *distcache.Cache
	ttl   time.Duration
}

var _ Store = (*DistStore)(nil)

func NewDistStore(ctx context.Context, cache *distcache.Cache, ttl time.Duration) *DistStore {
	return &DistStore{ctx: ctx, cache: cache, ttl: ttl}
}

func (s *DistStore) GetBySHA256(sha string) (Record, bool) {
	var rec Record
	ok, err := s.cache.Get(s.ctx, "sha:"+sha, &rec)
	if err != nil || !ok {
		return Record{}, false
	}
	return rec, true
}

func (s *DistStore) GetByCanonical(canonicalURL string) (Record, bool) {
	var rec Record
	ok, err := s.cache.Get(s.ctx, "canon:"+canonicalURL, &rec)
	if err != nil || !ok {
		return Record{}, false
	}
	return rec, true
}

func (s *DistStore) Put(rec Record) {
	if rec.Fingerprint != nil {
		s.cache.Set(s.ctx, "sha:"+rec.Fingerprint.SHA256, rec, s.ttl)
	}
	if rec.CanonicalURL != "" {
		s.cache.Set(s.ctx, "canon:"+rec.CanonicalURL, rec, s.ttl)
	}
}

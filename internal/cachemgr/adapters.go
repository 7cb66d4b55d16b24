package cachemgr

import (
	"context"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/appcache"
	"github.com/kraklabs/crawlcache-core/internal/distcache"
	"github.com/kraklabs/crawlcache-core/internal/edgecache"
)

// applicationLayer adapts internal/appcache.Cache (C10) to the Layer
// contract.
type applicationLayer struct {
	cache *appcache.Cache
}

func NewApplicationLayer(cache *appcache.Cache) Layer {
	return &applicationLayer{cache: cache}
}

func (l *applicationLayer) ID() LayerID { return LayerApplication }

func (l *applicationLayer) Get(_ context.Context, key string) ([]byte, bool, time.Duration, error) {
	value, found, ttl := l.cache.GetWithTTL(key)
	return value, found, ttl, nil
}

func (l *applicationLayer) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	l.cache.Set(key, value, ttl, 1, nil)
	return nil
}

func (l *applicationLayer) Delete(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// distributedLayer adapts internal/distcache.Cache (C11) to the Layer
// contract, storing raw bytes so CacheManager doesn't need to know
// distcache's serialization format.
type distributedLayer struct {
	cache *distcache.Cache
}

func NewDistributedLayer(cache *distcache.Cache) Layer {
	return &distributedLayer{cache: cache}
}

func (l *distributedLayer) ID() LayerID { return LayerDistributed }

func (l *distributedLayer) Get(ctx context.Context, key string) ([]byte, bool, time.Duration, error) {
	var out []byte
	found, err := l.cache.Get(ctx, key, &out)
	if err != nil {
		return nil, false, 0, err
	}
	if !found {
		return nil, false, 0, nil
	}
	ttl, err := l.cache.TTL(ctx, key)
	if err != nil || ttl < 0 {
		// Redis reports -1 for "no expiry" and -2 for "key vanished
		// between Get and TTL"; either way there's nothing to carry
		// forward, so promote with no TTL rather than fail the hit.
		ttl = 0
	}
	return out, true, ttl, nil
}

func (l *distributedLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := l.cache.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return nil
}

func (l *distributedLayer) Delete(ctx context.Context, key string) error {
	if err := l.cache.Delete(ctx, key); err != nil {
		return err
	}
	return nil
}

// edgeLayer adapts internal/edgecache.Manager (C12) to the Layer
// contract. Edge CDNs are fronting proxies, not addressable KV stores:
// there is no "get the cached bytes for this key" API on a real CDN
// the way there is for Redis or an in-process map, so Get always
// misses here, Set is a no-op, and Delete forwards to the provider's
// invalidation call instead of a store — CacheManager's promote-on-hit logic simply
// never promotes into this layer, which matches how edge caches are
// actually populated (by the next client request, not by the
// application writing through).
type edgeLayer struct {
	manager *edgecache.Manager
}

func NewEdgeLayer(manager *edgecache.Manager) Layer {
	return &edgeLayer{manager: manager}
}

func (l *edgeLayer) ID() LayerID { return LayerEdge }

func (l *edgeLayer) Get(_ context.Context, _ string) ([]byte, bool, time.Duration, error) {
	return nil, false, 0, nil
}

func (l *edgeLayer) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (l *edgeLayer) Delete(ctx context.Context, key string) error {
	if err := l.manager.Invalidate(ctx, []string{key}); err != nil {
		return err
	}
	return nil
}

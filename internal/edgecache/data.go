package edgecache

import "time"

// Behavior is what an edge provider does with a matching request.
type Behavior string

const (
	BehaviorCacheAll    Behavior = "cache_all"
	BehaviorCacheStatic Behavior = "cache_static"
	BehaviorBypass      Behavior = "bypass"
)

// QueryStringHandling controls whether query parameters participate
// in the edge cache key.
type QueryStringHandling string

const (
	QueryIgnoreAll QueryStringHandling = "ignore_all"
	QueryForwardAll QueryStringHandling = "forward_all"
	QueryWhitelist  QueryStringHandling = "whitelist"
)

// CacheRule is spec.md §4.12's declarative rule model.
type CacheRule struct {
	PathPattern     string
	Behavior        Behavior
	EdgeTTL         time.Duration
	BrowserTTL      time.Duration
	QueryHandling   QueryStringHandling
	QueryWhitelist  []string
	ForwardHeaders  []string
	ForwardCookies  []string
	Compress        bool
	AllowedMethods  []string
}

// ContentClass buckets response content for the default header
// generation table in spec.md §4.12.
type ContentClass string

const (
	ContentStaticAsset ContentClass = "static_asset"
	ContentHTML        ContentClass = "html"
	ContentAPI         ContentClass = "api"
	ContentUserSpecific ContentClass = "user_specific"
)

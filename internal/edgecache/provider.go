package edgecache

import "context"

// Provider is the adapter boundary spec.md §4.12 calls for: "Provider
// adapter produces provider-native config (two adapters at minimum)."
// Each adapter turns the declarative CacheRule set into whatever shape
// its target CDN actually consumes and performs invalidation/signing
// against that provider's API.
type Provider interface {
	Name() string
	RenderConfig(rules []CacheRule) (any, *EdgeCacheError)
	Invalidate(ctx context.Context, paths []string) *EdgeCacheError
	SignURL(rawURL string, expiresIn int64) (string, *EdgeCacheError)
}

// cloudFrontDistributionConfig is the provider-native shape a
// CloudFront-style adapter renders CacheRules into.
type cloudFrontDistributionConfig struct {
	CacheBehaviors []cloudFrontBehavior `json:"cache_behaviors"`
}

type cloudFrontBehavior struct {
	PathPattern          string   `json:"path_pattern"`
	MinTTL               int64    `json:"min_ttl"`
	DefaultTTL           int64    `json:"default_ttl"`
	ForwardedQueryString bool     `json:"forward_query_string"`
	ForwardedHeaders     []string `json:"forwarded_headers"`
	Compress             bool     `json:"compress"`
	AllowedMethods       []string `json:"allowed_methods"`
}

// CloudFrontProvider renders CacheRules the way an AWS
// CloudFront distribution config expects them, as one of the two
// adapters spec.md §4.12 requires at minimum.
type CloudFrontProvider struct {
	invalidationPaths []string
	signedURLs        map[string]string
}

func NewCloudFrontProvider() *CloudFrontProvider {
	return &CloudFrontProvider{signedURLs: make(map[string]string)}
}

func (p *CloudFrontProvider) Name() string { return "cloudfront" }

func (p *CloudFrontProvider) RenderConfig(rules []CacheRule) (any, *EdgeCacheError) {
	cfg := cloudFrontDistributionConfig{}
	for _, r := range rules {
		cfg.CacheBehaviors = append(cfg.CacheBehaviors, cloudFrontBehavior{
			PathPattern:          r.PathPattern,
			MinTTL:               0,
			DefaultTTL:           int64(r.EdgeTTL.Seconds()),
			ForwardedQueryString: r.QueryHandling != QueryIgnoreAll,
			ForwardedHeaders:     r.ForwardHeaders,
			Compress:             r.Compress,
			AllowedMethods:       r.AllowedMethods,
		})
	}
	return cfg, nil
}

func (p *CloudFrontProvider) Invalidate(_ context.Context, paths []string) *EdgeCacheError {
	p.invalidationPaths = append(p.invalidationPaths, paths...)
	return nil
}

func (p *CloudFrontProvider) SignURL(rawURL string, expiresIn int64) (string, *EdgeCacheError) {
	signed := signURLWithHMAC(rawURL, expiresIn, "cloudfront")
	p.signedURLs[rawURL] = signed
	return signed, nil
}

// fastlyVCLSnippet is the provider-native shape a Fastly-style adapter
// renders CacheRules into: a set of VCL-flavored directives rather
// than a JSON distribution config, reflecting how differently the two
// real providers actually express the same rule set.
type fastlyVCLSnippet struct {
	Directives []string `json:"directives"`
}

// FastlyProvider is the second of spec.md §4.12's minimum two adapters.
type FastlyProvider struct {
	invalidationPaths []string
}

func NewFastlyProvider() *FastlyProvider {
	return &FastlyProvider{}
}

func (p *FastlyProvider) Name() string { return "fastly" }

func (p *FastlyProvider) RenderConfig(rules []CacheRule) (any, *EdgeCacheError) {
	snippet := fastlyVCLSnippet{}
	for _, r := range rules {
		directive := "if (req.url ~ \"" + r.PathPattern + "\") { set beresp.ttl = " +
			durationToSeconds(r.EdgeTTL) + "s; }"
		snippet.Directives = append(snippet.Directives, directive)
	}
	return snippet, nil
}

func (p *FastlyProvider) Invalidate(_ context.Context, paths []string) *EdgeCacheError {
	p.invalidationPaths = append(p.invalidationPaths, paths...)
	return nil
}

func (p *FastlyProvider) SignURL(rawURL string, expiresIn int64) (string, *EdgeCacheError) {
	return signURLWithHMAC(rawURL, expiresIn, "fastly"), nil
}

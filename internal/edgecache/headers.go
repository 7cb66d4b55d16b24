package edgecache

import "fmt"

const (
	yearSeconds = 365 * 24 * 60 * 60
	htmlMaxAge  = 300
	apiMaxAge   = 300
)

// CacheControlHeader implements spec.md §4.12's per-content-type
// default header table: "static assets immutable + max-age=1y; HTML
// short max-age+must-revalidate; APIs 5 min; user-specific no-cache."
func CacheControlHeader(class ContentClass) string {
	switch class {
	case ContentStaticAsset:
		return fmt.Sprintf("public, max-age=%d, immutable", yearSeconds)
	case ContentHTML:
		return fmt.Sprintf("public, max-age=%d, must-revalidate", htmlMaxAge)
	case ContentAPI:
		return fmt.Sprintf("public, max-age=%d", apiMaxAge)
	case ContentUserSpecific:
		return "private, no-cache, no-store"
	default:
		return "no-cache"
	}
}

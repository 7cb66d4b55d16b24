package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// maxRedirects bounds how many hops a single fetch's redirect chain
// may take before it is treated as unbounded and rejected.
const maxRedirects = 10

type redirectChainKey struct{}

// redirectChain accumulates the URL of every intermediate response in
// a single fetch's redirect chain. It is stashed on the request
// context rather than on HtmlFetcher itself because httpClient (and
// therefore its CheckRedirect hook) is shared across every concurrent
// fetch loop in a WorkerPool.
type redirectChain struct {
	mu   sync.Mutex
	urls []string
}

func withRedirectChain(ctx context.Context) (context.Context, *redirectChain) {
	rc := &redirectChain{}
	return context.WithValue(ctx, redirectChainKey{}, rc), rc
}

func (rc *redirectChain) urlsSnapshot() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.urls))
	copy(out, rc.urls)
	return out
}

// checkRedirect enforces maxRedirects and records each hop visited so
// far onto the chain stashed in the request's context, per fetch.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if rc, ok := req.Context().Value(redirectChainKey{}).(*redirectChain); ok {
		rc.mu.Lock()
		rc.urls = append(rc.urls, via[len(via)-1].URL.String())
		rc.mu.Unlock()
	}
	return nil
}

// isRedirectLimitErr reports whether err is the http.Client wrapping
// of checkRedirect's redirect-limit refusal.
func isRedirectLimitErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "stopped after")
}

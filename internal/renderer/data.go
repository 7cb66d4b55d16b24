package renderer

import "time"

// WaitStrategy selects how a Lease decides a page has finished loading
// enough to extract content, per spec.md §4.6.
type WaitStrategy int

const (
	WaitLoad WaitStrategy = iota
	WaitDomContentLoaded
	WaitNetworkIdle
	WaitSelectorPresent
	WaitCustomFn
	WaitAuto
)

// stealthInitScript masks the most common headless-automation
// fingerprints (navigator.webdriver, missing plugins/languages,
// permissions API mismatch) before any page script runs in the
// context, per spec.md §4.6's "stealth init-script".
const stealthInitScript = `
(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
  Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
  window.chrome = window.chrome || { runtime: {} };
})();
`

// ajaxQuiescenceScript hooks fetch/XHR so Evaluate can poll the
// in-flight request count; Render's Auto/NetworkIdle wait uses it
// to detect "quiescent for 500ms" without the driver itself needing to
// understand application-level AJAX.
const ajaxQuiescenceScript = `
(() => {
  if (window.__crawlcacheAjaxHooked) return;
  window.__crawlcacheAjaxHooked = true;
  window.__crawlcacheInflight = 0;
  const origFetch = window.fetch;
  window.fetch = function(...args) {
    window.__crawlcacheInflight++;
    return origFetch.apply(this, args).finally(() => { window.__crawlcacheInflight--; });
  };
  const origOpen = XMLHttpRequest.prototype.open;
  const origSend = XMLHttpRequest.prototype.send;
  XMLHttpRequest.prototype.send = function(...args) {
    window.__crawlcacheInflight++;
    this.addEventListener('loadend', () => { window.__crawlcacheInflight--; });
    return origSend.apply(this, args);
  };
})();
`

// LeaseOptions configures a single AcquirePage call.
type LeaseOptions struct {
	Viewport        Viewport
	UserAgent       string
	Wait            WaitStrategy
	WaitSelector    string
	WaitTimeout     time.Duration
	BlockedTypes    []string
	BlockedDomains  []string
	CustomWait      func(p Page) (bool, error)
}

type Viewport struct {
	Width  int
	Height int
}

// RenderResult is what a completed Lease produces for the crawl
// pipeline (C9), corresponding to spec.md §3's "optional renderer
// artifacts".
type RenderResult struct {
	HTML        string
	Title       string
	ConsoleLogs []string
	NetworkLog  []NetworkEntry
	Screenshot  []byte
	RenderTime  time.Duration
}

type NetworkEntry struct {
	URL    string
	Method string
	Status int
}

// Stats is the cumulative total/success/fail/timeout/avg counters from
// spec.md §4.6.
type Stats struct {
	Total        int64
	Success      int64
	Failed       int64
	Timeouts     int64
	TotalRenderNs int64
}

func (s Stats) AvgRenderTime() time.Duration {
	if s.Success == 0 {
		return 0
	}
	return time.Duration(s.TotalRenderNs / s.Success)
}

package renderer

import (
	"context"
	"time"
)

/*
Driver, Browser, and Page are the PageDriver port spec.md §4.6 asks for.
No headless-browser binary exists anywhere in the example pack (no
chromedp/playwright-go dependency to adopt), so the actual browser
process is left as an injectable implementation — documented in
DESIGN.md as the one standard-library-only boundary of this package.
What IS fully implemented here is the hard, in-scope part of C6: lease
lifecycle, backpressure across max_browsers/max_contexts, stealth
init-script injection, wait-strategy evaluation, and metrics. Resource
blocking is not done here: LeaseOptions.BlockedTypes/BlockedDomains are
only handed to Browser.NewPage, and NoopDriver ignores them.
*/
type Driver interface {
	Launch(ctx context.Context) (Browser, *RendererError)
}

type Browser interface {
	// NewPage creates a fresh context (per spec.md "each lease creates
	// a fresh context") and returns its single page.
	NewPage(ctx context.Context, opts LeaseOptions) (Page, *RendererError)
	ContextCount() int
	Close() error
}

type Page interface {
	Goto(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string) (any, error)
	Content(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	ConsoleLogs() []string
	Close() error
}

// NoopDriver is the in-process test double used by renderer tests and
// by callers without a real browser wired in: each "browser" and
// "page" is an in-memory stand-in that echoes back the navigated URL
// as content, so wait-strategy and lease-lifecycle logic can be
// exercised deterministically.
type NoopDriver struct {
	MaxContextsPerBrowser int
}

func (d *NoopDriver) Launch(ctx context.Context) (Browser, *RendererError) {
	max := d.MaxContextsPerBrowser
	if max <= 0 {
		max = 1
	}
	return &noopBrowser{maxContexts: max}, nil
}

type noopBrowser struct {
	maxContexts int
	contexts    int
}

func (b *noopBrowser) NewPage(ctx context.Context, opts LeaseOptions) (Page, *RendererError) {
	if b.contexts >= b.maxContexts {
		return nil, &RendererError{Message: "browser at max contexts", Retryable: true, Cause: ErrCausePoolExhausted}
	}
	b.contexts++
	return &noopPage{}, nil
}

func (b *noopBrowser) ContextCount() int { return b.contexts }
func (b *noopBrowser) Close() error      { return nil }

type noopPage struct {
	url   string
	logs  []string
	start time.Time
}

func (p *noopPage) Goto(ctx context.Context, url string) error {
	p.url = url
	p.start = time.Now()
	return nil
}

func (p *noopPage) Evaluate(ctx context.Context, script string) (any, error) {
	if script == "window.__crawlcacheInflight" {
		return float64(0), nil
	}
	return nil, nil
}

func (p *noopPage) Content(ctx context.Context) (string, error) {
	return "<html><body>" + p.url + "</body></html>", nil
}

func (p *noopPage) Title(ctx context.Context) (string, error) { return p.url, nil }

func (p *noopPage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *noopPage) ConsoleLogs() []string { return p.logs }

func (p *noopPage) Close() error { return nil }

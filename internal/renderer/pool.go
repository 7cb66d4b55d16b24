package renderer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const acquireWait = 30 * time.Second

// Pool leases headless-browser pages per spec.md §4.6. A single mutex
// protects the browser list and per-browser context counts only;
// context creation and teardown (both potentially slow, process-level
// operations) happen outside the lock, matching spec.md §5's
// "Shared-resource policy" for the browser pool.
type Pool struct {
	driver      Driver
	maxBrowsers int
	maxContexts int

	mu       sync.Mutex
	browsers []*managedBrowser

	statsMu sync.Mutex
	stats   Stats

	metrics *poolMetrics
}

type managedBrowser struct {
	browser Browser
}

func NewPool(driver Driver, maxBrowsers, maxContexts int, reg prometheus.Registerer) *Pool {
	p := &Pool{driver: driver, maxBrowsers: maxBrowsers, maxContexts: maxContexts}
	p.metrics = newPoolMetrics(reg)
	return p
}

// Lease is a held page plus the context it owns, returned by
// AcquirePage. Release must be called exactly once; on any render
// exception the caller should call Destroy instead, per spec.md
// "on any exception the lease is destroyed (not returned to pool)".
type Lease struct {
	pool    *Pool
	browser *managedBrowser
	Page    Page
}

// AcquirePage implements the acquire/launch/wait ladder from
// spec.md §4.6.
func (p *Pool) AcquirePage(ctx context.Context, opts LeaseOptions) (*Lease, *RendererError) {
	deadline := time.Now().Add(acquireWait)

	for {
		mb, rerr := p.findOrLaunch(ctx)
		if rerr != nil {
			return nil, rerr
		}
		if mb != nil {
			page, perr := mb.browser.NewPage(ctx, opts)
			if perr != nil {
				// Lost the race to another acquirer; retry.
				if time.Now().After(deadline) {
					p.recordFailure()
					return nil, &RendererError{Message: "acquire timed out", Retryable: true, Cause: ErrCausePoolExhausted}
				}
				time.Sleep(25 * time.Millisecond)
				continue
			}

			p.incTotal()
			return &Lease{pool: p, browser: mb, Page: page}, nil
		}

		if time.Now().After(deadline) {
			p.recordFailure()
			return nil, &RendererError{Message: "acquire timed out waiting for capacity", Retryable: true, Cause: ErrCausePoolExhausted}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (p *Pool) findOrLaunch(ctx context.Context) (*managedBrowser, *RendererError) {
	p.mu.Lock()
	for _, mb := range p.browsers {
		if mb.browser.ContextCount() < p.maxContexts {
			p.mu.Unlock()
			return mb, nil
		}
	}
	canLaunch := len(p.browsers) < p.maxBrowsers
	p.mu.Unlock()

	if !canLaunch {
		return nil, nil
	}

	browser, rerr := p.driver.Launch(ctx)
	if rerr != nil {
		return nil, rerr
	}
	mb := &managedBrowser{browser: browser}

	p.mu.Lock()
	p.browsers = append(p.browsers, mb)
	p.mu.Unlock()

	return mb, nil
}

// Render navigates to url, applies the configured wait strategy, and
// extracts the result. Any error destroys the lease rather than
// returning it to the pool.
func (p *Pool) Render(ctx context.Context, lease *Lease, url string, opts LeaseOptions) (*RenderResult, *RendererError) {
	start := time.Now()

	if _, err := lease.Page.Evaluate(ctx, stealthInitScript); err != nil {
		p.Destroy(lease)
		p.recordFailure()
		return nil, &RendererError{Message: err.Error(), Retryable: true, Cause: ErrCauseRenderFailed}
	}
	if _, err := lease.Page.Evaluate(ctx, ajaxQuiescenceScript); err != nil {
		p.Destroy(lease)
		p.recordFailure()
		return nil, &RendererError{Message: err.Error(), Retryable: true, Cause: ErrCauseRenderFailed}
	}

	if err := lease.Page.Goto(ctx, url); err != nil {
		p.Destroy(lease)
		p.recordFailure()
		return nil, &RendererError{Message: err.Error(), Retryable: true, Cause: ErrCauseRenderFailed}
	}

	if err := p.applyWaitStrategy(ctx, lease.Page, opts); err != nil {
		p.Destroy(lease)
		p.statsMu.Lock()
		p.stats.Timeouts++
		p.statsMu.Unlock()
		p.metrics.timeouts.Inc()
		return nil, &RendererError{Message: err.Error(), Retryable: true, Cause: ErrCauseWaitTimeout}
	}

	html, err := lease.Page.Content(ctx)
	if err != nil {
		p.Destroy(lease)
		p.recordFailure()
		return nil, &RendererError{Message: err.Error(), Retryable: true, Cause: ErrCauseRenderFailed}
	}
	title, _ := lease.Page.Title(ctx)

	elapsed := time.Since(start)
	p.statsMu.Lock()
	p.stats.Success++
	p.stats.TotalRenderNs += elapsed.Nanoseconds()
	p.statsMu.Unlock()
	p.metrics.renderDuration.Observe(elapsed.Seconds())
	p.metrics.success.Inc()

	p.Release(lease)

	return &RenderResult{
		HTML:        html,
		Title:       title,
		ConsoleLogs: lease.Page.ConsoleLogs(),
		RenderTime:  elapsed,
	}, nil
}

// applyWaitStrategy blocks until the configured wait condition is
// satisfied or opts.WaitTimeout elapses. Auto inspects for SPA markers
// via Evaluate: when they are found it uses the AJAX-quiescence poll
// (in-flight count == 0 for 500ms) of NetworkIdle, otherwise it
// behaves like Load and returns at once.
func (p *Pool) applyWaitStrategy(ctx context.Context, page Page, opts LeaseOptions) error {
	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.Now().Add(timeout)

	strategy := opts.Wait
	if strategy == WaitAuto {
		if isSPA, _ := page.Evaluate(ctx, `!!(window.__NEXT_DATA__ || window.angular || window.Vue || document.querySelector('[data-reactroot]'))`); isSPA == true {
			strategy = WaitNetworkIdle
		} else {
			strategy = WaitLoad
		}
	}

	switch strategy {
	case WaitLoad, WaitDomContentLoaded:
		return nil
	case WaitSelectorPresent:
		for time.Now().Before(deadline) {
			found, _ := page.Evaluate(ctx, `!!document.querySelector(`+quoteJS(opts.WaitSelector)+`)`)
			if found == true {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return errTimeout{}
	case WaitNetworkIdle:
		return p.waitForQuiescence(ctx, page, deadline)
	case WaitCustomFn:
		for time.Now().Before(deadline) {
			if opts.CustomWait != nil {
				ok, err := opts.CustomWait(page)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
		return errTimeout{}
	default:
		return nil
	}
}

func (p *Pool) waitForQuiescence(ctx context.Context, page Page, deadline time.Time) error {
	quiescentSince := time.Time{}
	for time.Now().Before(deadline) {
		inflight, _ := page.Evaluate(ctx, "window.__crawlcacheInflight")
		count, _ := inflight.(float64)
		if count == 0 {
			if quiescentSince.IsZero() {
				quiescentSince = time.Now()
			}
			if time.Since(quiescentSince) >= 500*time.Millisecond {
				return nil
			}
		} else {
			quiescentSince = time.Time{}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errTimeout{}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "wait strategy timed out" }

func quoteJS(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}

// Release returns a healthy lease's context to the pool's bookkeeping
// (the context itself is closed; a fresh one is created on next use per
// spec.md's "each lease creates a fresh context").
func (p *Pool) Release(lease *Lease) {
	_ = lease.Page.Close()
}

// Destroy is called instead of Release whenever the lease experienced
// any exception: the lease is never returned to the pool.
func (p *Pool) Destroy(lease *Lease) {
	_ = lease.Page.Close()
}

func (p *Pool) incTotal() {
	p.statsMu.Lock()
	p.stats.Total++
	p.statsMu.Unlock()
	p.metrics.total.Inc()
}

func (p *Pool) recordFailure() {
	p.statsMu.Lock()
	p.stats.Failed++
	p.statsMu.Unlock()
	p.metrics.failed.Inc()
}

func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

type poolMetrics struct {
	total          prometheus.Counter
	success        prometheus.Counter
	failed         prometheus.Counter
	timeouts       prometheus.Counter
	renderDuration prometheus.Histogram
}

func newPoolMetrics(reg prometheus.Registerer) *poolMetrics {
	m := &poolMetrics{
		total:          prometheus.NewCounter(prometheus.CounterOpts{Name: "renderer_leases_total", Help: "Total render leases acquired."}),
		success:        prometheus.NewCounter(prometheus.CounterOpts{Name: "renderer_leases_success_total", Help: "Render leases that completed successfully."}),
		failed:         prometheus.NewCounter(prometheus.CounterOpts{Name: "renderer_leases_failed_total", Help: "Render leases that failed."}),
		timeouts:       prometheus.NewCounter(prometheus.CounterOpts{Name: "renderer_wait_timeouts_total", Help: "Wait-strategy timeouts."}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "renderer_render_duration_seconds", Help: "Render duration in seconds.", Buckets: prometheus.DefBuckets}),
	}
	if reg != nil {
		reg.MustRegister(m.total, m.success, m.failed, m.timeouts, m.renderDuration)
	}
	return m
}

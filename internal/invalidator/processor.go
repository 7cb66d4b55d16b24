package invalidator

import (
	"context"
	"sync"
	"time"
)

const (
	batchMaxEvents = 100
	batchMaxWait   = 100 * time.Millisecond
)

// Sink is where a batch of invalidation work actually lands — the
// cache manager's Delete/tag/pattern operations. Kept as a narrow
// interface (matching the port shape internal/dedup.Store and
// internal/rategovernor.Governor already use) so invalidator doesn't
// need to import cachemgr directly.
type Sink interface {
	DeleteKeys(ctx context.Context, keys []string) error
	DeleteTags(ctx context.Context, tags []string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// Processor is the batch event processor from spec.md §4.14: rules
// evaluated on events, a dependency graph for Cascade, and a batch
// drain loop grouping by keys/tags/patterns, flushed every <=100ms or
// at 100 events, deduplicating redundant events within a batch.
type Processor struct {
	sink  Sink
	graph *DependencyGraph

	mu        sync.Mutex
	pending   []Event
	seen      map[string]struct{}
	timer     *time.Timer

	failures int64

	onFlush func(batch []Event, err error) // test hook
}

func NewProcessor(sink Sink, graph *DependencyGraph) *Processor {
	if graph == nil {
		graph = NewDependencyGraph()
	}
	return &Processor{sink: sink, graph: graph, seen: make(map[string]struct{})}
}

// Submit evaluates ev against its RuleType and enqueues the resulting
// work. Delayed/Scheduled rules are handled by scheduling a later
// enqueue rather than acting immediately.
func (p *Processor) Submit(ev Event) {
	switch ev.Type {
	case RuleDelayed:
		go func() {
			time.Sleep(delayFromEvent(ev))
			p.enqueue(ev)
		}()
	case RuleScheduled:
		go func() {
			if wait := time.Until(ev.Timestamp); wait > 0 {
				time.Sleep(wait)
			}
			p.enqueue(ev)
		}()
	case RuleCascade:
		cascaded := p.graph.CascadeFrom(ev.AffectedKeys)
		ev.AffectedKeys = cascaded
		p.enqueue(ev)
	default:
		p.enqueue(ev)
	}
}

func delayFromEvent(ev Event) time.Duration {
	if until := ev.Timestamp.Sub(time.Now()); until > 0 {
		return until
	}
	return 0
}

func (p *Processor) enqueue(ev Event) {
	p.mu.Lock()
	key := ev.dedupKey()
	if _, dup := p.seen[key]; dup {
		p.mu.Unlock()
		return
	}
	p.seen[key] = struct{}{}
	p.pending = append(p.pending, ev)
	shouldFlush := len(p.pending) >= batchMaxEvents
	if p.timer == nil {
		p.timer = time.AfterFunc(batchMaxWait, p.flush)
	}
	p.mu.Unlock()

	if shouldFlush {
		p.flush()
	}
}

// flush drains the pending batch and dispatches one grouped call per
// (keys, tags, patterns) class, per spec.md §4.14: "dispatches one
// batched call per group every <=100 ms or at 100 events." On failure
// it increments a counter and continues rather than losing the batch
// silently.
func (p *Processor) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.seen = make(map[string]struct{})
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var keys, tags []string
	var patterns []string
	for _, ev := range batch {
		keys = append(keys, ev.AffectedKeys...)
		tags = append(tags, ev.AffectedTags...)
		if ev.Pattern != "" {
			patterns = append(patterns, ev.Pattern)
		}
	}

	ctx := context.Background()
	var firstErr error
	if len(keys) > 0 {
		if err := p.sink.DeleteKeys(ctx, dedupStrings(keys)); err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			firstErr = err
		}
	}
	if len(tags) > 0 {
		if err := p.sink.DeleteTags(ctx, dedupStrings(tags)); err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, pattern := range dedupStrings(patterns) {
		if err := p.sink.DeletePattern(ctx, pattern); err != nil {
			p.mu.Lock()
			p.failures++
			p.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if p.onFlush != nil {
		p.onFlush(batch, firstErr)
	}
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (p *Processor) Failures() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Processor) Flush() { p.flush() }

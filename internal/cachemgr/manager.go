package cachemgr

import (
	"context"
	"sync"
	"time"
)

// WarmerFunc produces the value to populate a key with when the
// warming scheduler runs, per spec.md §4.13's "A warming scheduler
// runs registered warmer functions every configured interval."
type WarmerFunc func(ctx context.Context) (key string, value []byte, ttl time.Duration, err error)

// Manager implements spec.md §4.13's layered cache: Edge ->
// Distributed -> Application -> Local, in that lookup order. Get
// walks the layers top-down and promotes a hit to every layer above
// it with the same TTL; Set and Delete fan out to every layer
// concurrently.
type Manager struct {
	layers  []Layer
	metrics *metricsRegistry

	warmMu      sync.Mutex
	warmers     []warmerEntry
	stopWarming chan struct{}
}

type warmerEntry struct {
	fn       WarmerFunc
	interval time.Duration
}

// NewManager takes layers already in top-down priority order (Edge
// first, Local last) — callers assemble the concrete set they need
// (not every deployment runs all four).
func NewManager(layers ...Layer) *Manager {
	return &Manager{
		layers:      layers,
		metrics:     newMetricsRegistry(),
		stopWarming: make(chan struct{}),
	}
}

// Get implements the read-through walk and promote-above-hit-layer
// behavior.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	for i, layer := range m.layers {
		value, found, ttl, err := layer.Get(ctx, key)
		if err != nil {
			continue
		}
		if !found {
			m.metrics.recordMiss(layer.ID())
			continue
		}
		m.metrics.recordHit(layer.ID())
		m.promoteAbove(ctx, i, key, value, ttl)
		return value, true, nil
	}
	return nil, false, nil
}

// promoteAbove writes a hit found at hitIndex into every layer above
// it with the same remaining TTL it had at the hit layer, so a
// promoted copy never outlives the value it was copied from.
func (m *Manager) promoteAbove(ctx context.Context, hitIndex int, key string, value []byte, ttl time.Duration) {
	for i := 0; i < hitIndex; i++ {
		_ = m.layers[i].Set(ctx, key, value, ttl)
	}
}

// Set writes to every specified layer concurrently; layers is nil to
// mean "all layers".
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration, layers ...LayerID) error {
	targets := m.resolveLayers(layers)
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, layer := range targets {
		wg.Add(1)
		go func(i int, layer Layer) {
			defer wg.Done()
			errs[i] = layer.Set(ctx, key, value, ttl)
		}(i, layer)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete fans out a delete to every layer and invokes any registered
// invalidation callbacks, per spec.md §4.13's "delete: fan-out delete
// + trigger invalidation callbacks."
func (m *Manager) Delete(ctx context.Context, key string, onInvalidated func(string)) error {
	var wg sync.WaitGroup
	errs := make([]error, len(m.layers))
	for i, layer := range m.layers {
		wg.Add(1)
		go func(i int, layer Layer) {
			defer wg.Done()
			errs[i] = layer.Delete(ctx, key)
		}(i, layer)
	}
	wg.Wait()
	if onInvalidated != nil {
		onInvalidated(key)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) resolveLayers(ids []LayerID) []Layer {
	if len(ids) == 0 {
		return m.layers
	}
	want := make(map[LayerID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Layer
	for _, layer := range m.layers {
		if _, ok := want[layer.ID()]; ok {
			out = append(out, layer)
		}
	}
	return out
}

// RegisterWarmer schedules fn to run every interval until Close.
func (m *Manager) RegisterWarmer(fn WarmerFunc, interval time.Duration) {
	m.warmMu.Lock()
	m.warmers = append(m.warmers, warmerEntry{fn: fn, interval: interval})
	entry := m.warmers[len(m.warmers)-1]
	m.warmMu.Unlock()

	go m.runWarmer(entry)
}

func (m *Manager) runWarmer(entry warmerEntry) {
	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx := context.Background()
			key, value, ttl, err := entry.fn(ctx)
			if err != nil {
				continue
			}
			_ = m.Set(ctx, key, value, ttl)
		case <-m.stopWarming:
			return
		}
	}
}

func (m *Manager) Close() {
	close(m.stopWarming)
}

func (m *Manager) Metrics() map[LayerID]LayerStats {
	return m.metrics.Snapshot()
}

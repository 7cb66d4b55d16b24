package appcache

import (
	"container/heap"
	"path/filepath"
	"sync"
	"time"
)

// Cache is the in-process application cache from spec.md §4.10: a
// single mutex guards the entry map, the tag index, and the expiry
// min-heap together, the same "one lock for the whole structure"
// discipline internal/robots/cache.MemoryCache uses for its plain
// map, generalized here to cover the extra indexes eviction and
// expiry need.
type Cache struct {
	mu sync.Mutex

	entries map[string]*Entry
	tags    map[string]map[string]struct{}
	expiry  expiryHeap
	order   []string // FIFO/LRU-ish insertion/access order, oldest first

	policy     EvictionPolicy
	maxSize    int64
	maxEntries int
	curSize    int64

	stats Stats

	stopCleaner chan struct{}
}

type Option func(*Cache)

func WithPolicy(p EvictionPolicy) Option { return func(c *Cache) { c.policy = p } }
func WithMaxSize(n int64) Option         { return func(c *Cache) { c.maxSize = n } }
func WithMaxEntries(n int) Option        { return func(c *Cache) { c.maxEntries = n } }

// New constructs a Cache and starts its background expiry cleaner,
// per spec.md §4.10's "Background expiry cleaner runs every 60 s."
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[string]*Entry),
		tags:        make(map[string]map[string]struct{}),
		policy:      PolicyLRU,
		maxSize:     64 << 20,
		maxEntries:  100000,
		stopCleaner: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	heap.Init(&c.expiry)
	go c.runCleaner()
	return c
}

func (c *Cache) Close() {
	close(c.stopCleaner)
}

func (c *Cache) runCleaner() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired(time.Now())
		case <-c.stopCleaner:
			return
		}
	}
}

func (c *Cache) sweepExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.expiry.Len() > 0 {
		head := c.expiry[0]
		if head.removed {
			heap.Pop(&c.expiry)
			continue
		}
		if !head.expired(now) {
			return
		}
		heap.Pop(&c.expiry)
		c.removeLocked(head.Key)
		c.stats.Expirations++
	}
}

// Get implements spec.md §4.10's get(key): missing -> miss; expired ->
// remove + miss; else update access metadata and return.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(key)
		c.stats.Misses++
		c.stats.Expirations++
		return nil, false
	}

	e.AccessCount++
	e.LastAccessed = time.Now()
	c.touchOrderLocked(key)
	c.stats.Hits++
	return e.Value, true
}

// GetWithTTL behaves like Get but also reports how much longer the
// entry has left before it expires (zero if it has no expiry), so
// callers that re-home a value elsewhere (cachemgr's layer promotion)
// can carry the remaining TTL forward instead of minting a fresh one.
func (c *Cache) GetWithTTL(key string) ([]byte, bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false, 0
	}
	now := time.Now()
	if e.expired(now) {
		c.removeLocked(key)
		c.stats.Misses++
		c.stats.Expirations++
		return nil, false, 0
	}

	e.AccessCount++
	e.LastAccessed = now
	c.touchOrderLocked(key)
	c.stats.Hits++

	var remaining time.Duration
	if !e.ExpiresAt.IsZero() {
		remaining = e.ExpiresAt.Sub(now)
	}
	return e.Value, true, remaining
}

// Set implements spec.md §4.10's set(key, value, ttl, cost, tags):
// reject oversized values, evict until the new entry fits, insert,
// index by tag, push onto the expiry heap.
func (c *Cache) Set(key string, value []byte, ttl time.Duration, cost float64, tags []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(value))
	if c.maxSize > 0 && size > c.maxSize {
		c.stats.Errors++
		return false
	}

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing.Key)
	}

	for c.shouldEvictLocked(size) {
		if !c.evictOneLocked() {
			break
		}
	}

	now := time.Now()
	e := &Entry{
		Key:          key,
		Value:        value,
		Size:         int(size),
		CreatedAt:    now,
		LastAccessed: now,
		Cost:         cost,
		Tags:         tags,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
		heap.Push(&c.expiry, e)
	}

	c.entries[key] = e
	c.order = append(c.order, key)
	c.curSize += size
	c.stats.Sets++

	for _, tag := range tags {
		bucket, ok := c.tags[tag]
		if !ok {
			bucket = make(map[string]struct{})
			c.tags[tag] = bucket
		}
		bucket[key] = struct{}{}
	}
	return true
}

func (c *Cache) shouldEvictLocked(incoming int64) bool {
	overSize := c.maxSize > 0 && c.curSize+incoming > c.maxSize
	overCount := c.maxEntries > 0 && len(c.entries) >= c.maxEntries
	return (overSize || overCount) && len(c.entries) > 0
}

// evictOneLocked removes exactly one entry chosen by the configured
// policy. Returns false if nothing was left to evict.
func (c *Cache) evictOneLocked() bool {
	victim := c.chooseVictimLocked()
	if victim == "" {
		return false
	}
	c.removeLocked(victim)
	c.stats.Evictions++
	return true
}

func (c *Cache) chooseVictimLocked() string {
	if len(c.entries) == 0 {
		return ""
	}
	switch c.policy {
	case PolicyLFU:
		return c.leastFrequentLocked()
	case PolicyFIFO:
		return c.oldestCreatedLocked()
	case PolicyAdaptive:
		return c.adaptiveLocked()
	default: // PolicyLRU
		return c.leastRecentlyUsedLocked()
	}
}

func (c *Cache) leastRecentlyUsedLocked() string {
	if len(c.order) == 0 {
		return ""
	}
	for _, key := range c.order {
		if _, ok := c.entries[key]; ok {
			return key
		}
	}
	return ""
}

func (c *Cache) leastFrequentLocked() string {
	var victim string
	var min int64 = -1
	for key, e := range c.entries {
		if min < 0 || e.AccessCount < min {
			min, victim = e.AccessCount, key
		}
	}
	return victim
}

func (c *Cache) oldestCreatedLocked() string {
	var victim string
	var oldest time.Time
	for key, e := range c.entries {
		if oldest.IsZero() || e.CreatedAt.Before(oldest) {
			oldest, victim = e.CreatedAt, key
		}
	}
	return victim
}

// adaptiveLocked scores each entry on recency, inverse frequency, and
// size, and evicts the highest-scoring (least valuable) one, per
// spec.md §4.10's "weighted combination of recency, inverse-frequency,
// size."
func (c *Cache) adaptiveLocked() string {
	now := time.Now()
	var victim string
	var worst float64 = -1
	for key, e := range c.entries {
		age := now.Sub(e.LastAccessed).Seconds()
		score := 0.5*age + 0.3/float64(e.AccessCount+1) + 0.2*float64(e.Size)
		if score > worst {
			worst, victim = score, key
		}
	}
	return victim
}

func (c *Cache) touchOrderLocked(key string) {
	if c.policy != PolicyLRU && c.policy != PolicyAdaptive {
		return
	}
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.curSize -= int64(e.Size)
	e.removed = true

	for _, tag := range e.Tags {
		if bucket, ok := c.tags[tag]; ok {
			delete(bucket, key)
			if len(bucket) == 0 {
				delete(c.tags, tag)
			}
		}
	}
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// InvalidateTag implements spec.md §4.10's invalidate_tag(tag):
// removes every entry carrying the tag and drops the tag bucket.
func (c *Cache) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.tags[tag]
	if !ok {
		return 0
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	for _, key := range keys {
		c.removeLocked(key)
	}
	delete(c.tags, tag)
	return len(keys)
}

// InvalidatePattern implements spec.md §4.10's invalidate_pattern(glob)
// by scanning keys with path.Match-style glob semantics.
func (c *Cache) InvalidatePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []string
	for key := range c.entries {
		if ok, _ := filepath.Match(pattern, key); ok {
			matched = append(matched, key)
		}
	}
	for _, key := range matched {
		c.removeLocked(key)
	}
	return len(matched)
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CurrentSize = c.curSize
	s.MaxSize = c.maxSize
	s.EntryCount = len(c.entries)
	s.MaxEntries = c.maxEntries
	return s
}

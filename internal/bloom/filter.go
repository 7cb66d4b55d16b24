package bloom

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kraklabs/crawlcache-core/pkg/fileutil"
	"lukechampine.com/blake3"
)

/*
Filter is a fixed-capacity, append-only probabilistic set of URL hashes.

Responsibilities
- seen? / add over k independent hash functions derived from a single
  blake3 digest (Kirsch-Mitzenmacher double hashing), mirroring the
  teacher's use of blake3 for content hashing elsewhere in the repo.
- Never produces a false negative for an Add'd key.
- Never deletes. Rebuild is a caller decision once FillRatio() > 0.9;
  this package only logs, it never rebuilds itself.

Concurrency
- Seen/Add are guarded by a single RWMutex over the live bit array,
  matching the discipline pkg/limiter.ConcurrentRateLimiter already
  uses for its host-timing map.
- Persist takes a brief read lock to clone an immutable Snapshot, then
  performs file I/O outside the lock so writers are not blocked by
  slow disk. The clone-then-write-to-temp-then-rename sequence is what
  makes the on-disk file atomic: a concurrent reader of the file sees
  either the previous complete file or the new one, never a partial
  write.
*/
type Filter struct {
	mu       sync.RWMutex
	bits     []uint64
	capacity uint64
	epsilon  float64
	k        int
	count    uint64

	logger func(msg string)
}

// New creates an empty Filter sized for capacity expected insertions at
// false-positive rate epsilon. Panics-free: invalid parameters return a
// BloomError instead, since the programmer-error cases in spec.md §7
// must fail fast, not fail catastrophically.
func New(capacity uint64, epsilon float64) (*Filter, *BloomError) {
	if capacity == 0 {
		return nil, &BloomError{Message: "capacity must be > 0", Cause: ErrCauseInvalidCapacity}
	}
	if epsilon <= 0 || epsilon >= 1 {
		return nil, &BloomError{Message: "epsilon must be in (0,1)", Cause: ErrCauseInvalidCapacity}
	}

	numBits := optimalBits(capacity, epsilon)
	k := optimalK(numBits, capacity)
	words := (numBits + 63) / 64

	return &Filter{
		bits:     make([]uint64, words),
		capacity: capacity,
		epsilon:  epsilon,
		k:        k,
	}, nil
}

// WithLogger attaches a warning sink used when FillRatio crosses 0.9.
// Kept separate from metadata.MetadataSink so this package has no
// dependency on the crawl pipeline's observability types.
func (f *Filter) WithLogger(logger func(msg string)) *Filter {
	f.logger = logger
	return f
}

func optimalBits(n uint64, eps float64) int {
	m := -float64(n) * math.Log(eps) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return int(math.Ceil(m))
}

func optimalK(numBits int, n uint64) int {
	k := int(math.Round(float64(numBits) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return k
}

// positions returns the k bit indices for key, derived by splitting a
// single blake3 digest into two 64-bit halves and double-hashing
// (Kirsch-Mitzenmacher), avoiding k independent hash computations.
func (f *Filter) positions(key string) []uint64 {
	sum := blake3.Sum256([]byte(key))
	h1 := beUint64(sum[0:8])
	h2 := beUint64(sum[8:16])

	numBits := uint64(len(f.bits)) * 64
	out := make([]uint64, f.k)
	for i := 0; i < f.k; i++ {
		combined := h1 + uint64(i)*h2
		out[i] = combined % numBits
	}
	return out
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Seen reports whether key may already have been added. It may return
// true for a key that was never added, with probability bounded by
// Epsilon; it never returns false for a key that was Add'd.
func (f *Filter) Seen(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, pos := range f.positions(key) {
		word, bit := pos/64, pos%64
		if f.bits[word]&(1<<bit) == 0 {
			return false
		}
	}
	return true
}

// Add inserts key and reports whether it was newly inserted (i.e. was
// not already Seen under the current bit array). Add never removes a
// bit: the filter is append-only for the lifetime of a Filter value.
func (f *Filter) Add(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	positions := f.positions(key)
	alreadySet := true
	for _, pos := range positions {
		word, bit := pos/64, pos%64
		if f.bits[word]&(1<<bit) == 0 {
			alreadySet = false
			f.bits[word] |= 1 << bit
		}
	}
	if !alreadySet {
		f.count++
	}

	if f.logger != nil && f.FillRatioLocked() > 0.9 {
		f.logger(fmt.Sprintf("bloom filter fill ratio %.2f exceeds 0.9; caller should rebuild", f.FillRatioLocked()))
	}

	return !alreadySet
}

func (f *Filter) FillRatioLocked() float64 {
	if f.capacity == 0 {
		return 0
	}
	return float64(f.count) / float64(f.capacity)
}

// Snapshot returns an immutable, point-in-time copy of the filter's
// state suitable for Persist or cross-process inspection.
func (f *Filter) Snapshot() *Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bitsCopy := make([]uint64, len(f.bits))
	copy(bitsCopy, f.bits)
	return &Snapshot{
		bits:     bitsCopy,
		capacity: f.capacity,
		epsilon:  f.epsilon,
		count:    f.count,
		k:        f.k,
	}
}

func (f *Filter) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

func (f *Filter) FillRatio() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.FillRatioLocked()
}

// Persist writes an atomic snapshot to path: the clone above is taken
// under lock, then serialized to a temp file in the same directory and
// renamed over path, so any reader of path observes either the
// previous complete snapshot or the new one.
func (f *Filter) Persist(path string) *BloomError {
	snap := f.Snapshot()

	header := persistedHeader{
		Capacity:  snap.capacity,
		Epsilon:   snap.epsilon,
		Count:     snap.count,
		K:         snap.k,
		Words:     len(snap.bits),
		PersistAt: time.Now(),
	}

	buf, err := encodeSnapshot(header, snap.bits)
	if err != nil {
		return &BloomError{Message: err.Error(), Retryable: false, Cause: ErrCausePersistFailure}
	}

	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return &BloomError{Message: err.Error(), Retryable: true, Cause: ErrCausePersistFailure}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return &BloomError{Message: err.Error(), Retryable: true, Cause: ErrCausePersistFailure}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &BloomError{Message: err.Error(), Retryable: true, Cause: ErrCausePersistFailure}
	}
	return nil
}

// Load replaces the filter's entire live state from a snapshot file
// written by Persist. Load takes the write lock for the whole
// operation: concurrent Seen callers block briefly rather than observe
// a half-replaced bit array.
func (f *Filter) Load(path string) *BloomError {
	buf, err := os.ReadFile(path)
	if err != nil {
		return &BloomError{Message: err.Error(), Retryable: false, Cause: ErrCauseLoadFailure}
	}

	header, bits, err := decodeSnapshot(buf)
	if err != nil {
		return &BloomError{Message: err.Error(), Retryable: false, Cause: ErrCauseCorruptSnapshot}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits = bits
	f.capacity = header.Capacity
	f.epsilon = header.Epsilon
	f.count = header.Count
	f.k = header.K
	return nil
}

package dedup

import (
	"math/bits"

	"github.com/kraklabs/crawlcache-core/internal/fingerprint"
)

// Engine runs the five-stage Check pipeline from spec.md §4.8:
// exact hash match, LSH near-duplicate candidates, known-canonical
// redirect, SimHash-bucket similarity sweep, and finally Unique.
type Engine struct {
	policy Policy
	store  Store
	index  *fingerprint.LSHIndex
}

// NewEngine gives the Engine its own LSH index rather than sharing one
// process-wide, so two Engines in the same process (e.g. two
// concurrent crawl jobs) never cross-contaminate each other's
// near-duplicate candidates.
func NewEngine(policy Policy, store Store) *Engine {
	return NewEngineWithIndex(policy, store, fingerprint.NewDefaultLSHIndex())
}

func NewEngineWithIndex(policy Policy, store Store, index *fingerprint.LSHIndex) *Engine {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Engine{policy: policy, store: store, index: index}
}

// Index exposes the engine's LSH index so a caller's fingerprint.Compute
// call can insert a page's signature into the same index this engine's
// Check will then query.
func (e *Engine) Index() *fingerprint.LSHIndex {
	return e.index
}

// Check implements spec.md §4.8's five-stage verdict pipeline.
func (e *Engine) Check(pageURL string, canonicalURL string, fp *fingerprint.Fingerprint, meta Metadata) (*Result, *DedupError) {
	if fp == nil {
		return nil, &DedupError{Message: "fingerprint is required", Cause: ErrCauseMissingFingerprint}
	}

	// Stage 1: exact match by SHA-256.
	if existing, ok := e.store.GetBySHA256(fp.SHA256); ok && existing.URL != pageURL {
		return &Result{
			Verdict:      VerdictExact,
			Action:       e.policy.ExactAction,
			MatchedURL:   existing.URL,
			Score:        1.0,
			CanonicalURL: existing.CanonicalURL,
		}, nil
	}

	// Stage 2: LSH near-duplicate candidate sweep.
	if e.index != nil {
		candidates := e.index.Candidates(fp.MinHash, pageURL)
		bestURL, bestScore := "", 0.0
		for _, candidateURL := range candidates {
			sig, ok := e.index.Signature(candidateURL)
			if !ok {
				continue
			}
			jaccard := fingerprint.EstimateJaccard(fp.MinHash, sig)
			score := weightedScore(jaccard, meta)
			if score > bestScore {
				bestScore, bestURL = score, candidateURL
			}
		}
		if bestScore >= e.policy.NearDuplicateThreshold {
			matched, _ := e.store.GetByCanonical(bestURL)
			return &Result{
				Verdict:      VerdictNearDuplicate,
				Action:       e.policy.NearDupAction,
				MatchedURL:   bestURL,
				Score:        bestScore,
				CanonicalURL: matched.CanonicalURL,
			}, nil
		}
	}

	// Stage 3: known canonical URL already stored.
	if canonicalURL != "" {
		if existing, ok := e.store.GetByCanonical(canonicalURL); ok && existing.URL != pageURL {
			return &Result{
				Verdict:      VerdictCanonicalDuplicate,
				Action:       e.policy.CanonicalAction,
				MatchedURL:   existing.URL,
				Score:        1.0,
				CanonicalURL: canonicalURL,
			}, nil
		}
	}

	// Stage 4: SimHash-bucket similarity sweep over recent records.
	if best, bestScore, ok := e.simHashSweep(pageURL, fp.SimHash64); ok && bestScore >= e.policy.SimilarThreshold {
		return &Result{
			Verdict:      VerdictSimilar,
			Action:       e.policy.SimilarAction,
			MatchedURL:   best,
			Score:        bestScore,
		}, nil
	}

	// Stage 5: Unique — store fingerprint, sample, and canonical mapping.
	e.store.Put(Record{URL: pageURL, CanonicalURL: canonicalURL, Fingerprint: fp})
	return &Result{Verdict: VerdictUnique, Action: ActionAccept, CanonicalURL: canonicalURL}, nil
}

// simHashSweep is a best-effort scan over LSH candidates, found by
// querying the index again with the signature stored under pageURL,
// scored by Hamming closeness instead of Jaccard — a cheap second
// opinion when the MinHash score fell just short of near-duplicate.
// It finds nothing when the index holds no signature for pageURL.
func (e *Engine) simHashSweep(pageURL string, simhash uint64) (string, float64, bool) {
	if e.index == nil {
		return "", 0, false
	}
	sig, ok := e.index.Signature(pageURL)
	if !ok {
		return "", 0, false
	}
	candidates := e.index.Candidates(sig, pageURL)
	bestURL, bestScore, found := "", 0.0, false
	for _, candidateURL := range candidates {
		rec, ok := e.store.GetByCanonical(candidateURL)
		if !ok || rec.Fingerprint == nil {
			continue
		}
		distance := bits.OnesCount64(simhash ^ rec.Fingerprint.SimHash64)
		score := 1.0 - float64(distance)/64.0
		if score > bestScore {
			bestScore, bestURL, found = score, candidateURL, true
		}
	}
	return bestURL, bestScore, found
}

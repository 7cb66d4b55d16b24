package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// lshBands/lshRows split the 128-entry MinHash signature into 32 bands
// of 4 rows each, which puts the LSH candidate threshold, roughly
// (1/bands)^(1/rows), near 0.42 (fewer, larger bands raise precision
// at the cost of recall; more, smaller bands do the opposite).
const (
	lshBands = 32
	lshRows  = minHashPermutations / lshBands
)

// NewDefaultLSHIndex builds an LSH index sized the way the dedup
// engine expects (lshBands bands of lshRows rows each) for callers
// that need one of their own — each dedup.Engine owns a distinct
// index so independently-configured crawl jobs never cross-
// contaminate each other's near-duplicate candidates.
func NewDefaultLSHIndex() *LSHIndex {
	return NewLSHIndex(lshBands, lshRows)
}

// Compute implements spec.md §4.7's content fingerprint: it extracts
// and normalizes the page text, then derives every comparison digest
// the dedup engine (C8) needs from that single normalized form so
// exact-duplicate, near-duplicate, and similarity checks all agree on
// what "the content" was. If index is non-nil and pageURL is set, the
// signature is also inserted into index under pageURL so a subsequent
// dedup.Engine.Check against the same index can find it as a
// candidate — callers share one index across Compute/Check calls by
// passing the same *LSHIndex (typically a dedup.Engine's own).
func Compute(pageURL string, htmlBytes []byte, index *LSHIndex) (*Fingerprint, *FingerprintError) {
	if len(htmlBytes) == 0 {
		return nil, &FingerprintError{Message: "empty content", Retryable: false, Cause: ErrCauseEmptyContent}
	}

	text, err := ExtractText(htmlBytes)
	if err != nil {
		return nil, &FingerprintError{Message: "parse failed: " + err.Error(), Retryable: false, Cause: ErrCauseParseFailed}
	}

	normalized := NormalizeText(text)
	tokens := Tokenize(normalized)
	if len(tokens) == 0 {
		return nil, &FingerprintError{Message: "no extractable text", Retryable: false, Cause: ErrCauseEmptyContent}
	}

	sum := sha256.Sum256([]byte(normalized))
	shingles := Shingles(tokens, shingleSize)
	sig := MinHashSignature(shingles)

	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}

	fp := &Fingerprint{
		SHA256:          hex.EncodeToString(sum[:]),
		NonCryptoHash64: fnv64(normalized),
		SimHash64:       SimHash64(tokens),
		MinHash:         sig,
		ByteLength:      len(htmlBytes),
		WordCount:       len(tokens),
		UniqueWordCount: len(unique),
	}

	if index != nil && pageURL != "" {
		index.Insert(pageURL, sig)
	}
	return fp, nil
}

// NearDuplicateCandidates returns URLs whose MinHash signature shares
// at least one LSH band with fp, the candidate set the dedup engine
// then verifies with EstimateJaccard before declaring a near-duplicate.
func NearDuplicateCandidates(index *LSHIndex, pageURL string, fp *Fingerprint) []string {
	return index.Candidates(fp.MinHash, pageURL)
}

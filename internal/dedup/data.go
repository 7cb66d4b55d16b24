package dedup

import "github.com/kraklabs/crawlcache-core/internal/fingerprint"

// Verdict classifies a Check call's outcome per spec.md §4.8.
type Verdict string

const (
	VerdictExact             Verdict = "exact"
	VerdictNearDuplicate      Verdict = "near_duplicate"
	VerdictCanonicalDuplicate Verdict = "canonical_duplicate"
	VerdictSimilar            Verdict = "similar"
	VerdictUnique             Verdict = "unique"
)

// Action is what the caller should do with a verdict, driven by Policy.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionRedirect Action = "redirect"
	ActionMerge    Action = "merge"
)

// Policy configures the thresholds and actions the Check pipeline
// applies at each stage, per spec.md §4.8's "Policy object".
type Policy struct {
	NearDuplicateThreshold float64
	SimilarThreshold       float64

	ExactAction      Action
	NearDupAction     Action
	CanonicalAction   Action
	SimilarAction     Action

	PreferShorterCanonical bool
}

// DefaultPolicy matches the conservative defaults the original crawler
// ships with: reject exact and near-duplicates outright, merge similar
// content into the existing cluster, redirect known canonical URLs.
func DefaultPolicy() Policy {
	return Policy{
		NearDuplicateThreshold: 0.85,
		SimilarThreshold:       0.7,
		ExactAction:            ActionReject,
		NearDupAction:          ActionReject,
		CanonicalAction:        ActionRedirect,
		SimilarAction:          ActionMerge,
	}
}

// Metadata is the out-of-band signal Check folds into the weighted
// near-duplicate score alongside shingle-Jaccard similarity (spec.md
// §4.8: "weighted similarity score (Jaccard over shingles, cosine over
// TF-IDF, structural, metadata)"). TF-IDF cosine and a structural
// (DOM-shape) score are intentionally out of scope: the example pack
// carries no text-vectorization or DOM-diff library, and a hand-rolled
// TF-IDF index would need a corpus-wide term index this package has no
// home for yet; MetadataScore lets callers fold in whatever comparable
// signal they have (publish date proximity, title similarity, ...).
type Metadata struct {
	MetadataScore float64
}

// Record is what Check stores for a Unique page so later calls have
// something to compare against.
type Record struct {
	URL           string
	CanonicalURL  string
	Fingerprint   *fingerprint.Fingerprint
	SampleContent string
}

// Result is Check's return value.
type Result struct {
	Verdict       Verdict
	Action        Action
	MatchedURL    string
	Score         float64
	CanonicalURL  string
}

const (
	weightJaccard  = 0.6
	weightMetadata = 0.4
)

func weightedScore(jaccard float64, meta Metadata) float64 {
	return weightJaccard*jaccard + weightMetadata*meta.MetadataScore
}

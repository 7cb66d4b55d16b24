package queue

import (
	"net/url"
	"time"
)

/*
Entry is the queue element described in spec.md §3 "URL entry". Two
Entries with the same normalized URL (urlutil.NormalizeCrawlTarget) are the same entry: normalization
(lowercase host, fragment stripped, query params lexicographically
sorted) happens once at Enqueue and the result is what every tier, the
bloom filter, and the visited set key off of.
*/
type Entry struct {
	URL          url.URL
	Priority     Priority
	Depth        int
	Referrer     string
	DiscoveredAt time.Time
	RetryCount   int
	Metadata     map[string]string
}

// Priority is one of the five tiers in spec.md §3/§4.3. Lower numeric
// value means higher priority; tiers are scanned Critical-first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityDeferred
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

var tiers = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityDeferred}

// EnqueueResult is the outcome of Enqueue: either the entry was newly
// admitted, or it had already been seen (bloom hit or visited-set hit).
type EnqueueResult int

const (
	Inserted EnqueueResult = iota
	AlreadySeen
)

// maxRetry bounds Fail's reinsert-at-Low path; beyond it an entry is
// promoted to the failed set instead of being retried again.
const maxRetry = 5

// leaseTTL is how long an entry may sit in the processing set before
// the recovery loop reclaims it to its original tier (spec.md §4.3,
// S4).
const leaseTTL = 5 * time.Minute

// recoveryInterval is the recovery loop's tick period.
const recoveryInterval = 60 * time.Second

// deferredRetryDelay is how far in the future a rate-denied entry's
// score is pushed when it is moved to the Deferred tier.
const deferredRetryDelay = 5 * time.Minute

// processingEntry is what is actually stored in the processing set: the
// entry plus which tier it came from (needed for recovery) and when the
// lease was taken.
type processingEntry struct {
	Entry      Entry      `json:"entry"`
	FromTier   Priority   `json:"from_tier"`
	LeasedAt   time.Time  `json:"leased_at"`
}

// failedEntry records why an entry was given up on.
type failedEntry struct {
	Entry  Entry  `json:"entry"`
	Reason string `json:"reason"`
}

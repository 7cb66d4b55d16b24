package invalidator

import "time"

// RuleType is the closed set of invalidation triggers spec.md §4.14
// names: "{Immediate, Delayed(d), Scheduled(t), Cascade, Pattern, Tag,
// Ttl, Event}".
type RuleType string

const (
	RuleImmediate RuleType = "immediate"
	RuleDelayed   RuleType = "delayed"
	RuleScheduled RuleType = "scheduled"
	RuleCascade   RuleType = "cascade"
	RulePattern   RuleType = "pattern"
	RuleTag       RuleType = "tag"
	RuleTTL       RuleType = "ttl"
	RuleEvent     RuleType = "event"
)

// Rule binds a trigger to the keys/tags/pattern it invalidates.
type Rule struct {
	Type     RuleType
	Delay    time.Duration // RuleDelayed
	At       time.Time     // RuleScheduled
	Keys     []string
	Tags     []string
	Pattern  string
	EventName string // RuleEvent
}

// Event is one invalidation trigger firing, per spec.md §3's
// "Invalidation event" data model.
type Event struct {
	Type          RuleType
	Source        string
	Timestamp     time.Time
	AffectedKeys  []string
	AffectedTags  []string
	Pattern       string
	Cascade       bool
}

// dedupKey identifies events that would produce an identical
// invalidation so a batch never issues the same work twice, per
// spec.md §4.14's "Deduplication of redundant events across a batch is
// required."
func (e Event) dedupKey() string {
	key := string(e.Type) + "|" + e.Pattern + "|"
	for _, k := range e.AffectedKeys {
		key += "k:" + k + ","
	}
	for _, t := range e.AffectedTags {
		key += "t:" + t + ","
	}
	return key
}

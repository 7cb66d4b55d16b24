package distsync

import "sync"

// recentIDSet is the bounded recent-message-id dedup set from spec.md
// §4.15: "track recent ids (bounded set; trim when > 10000)." A plain
// map would grow unboundedly under sustained traffic, so insertion
// order is tracked alongside the set to trim the oldest half once the
// cap is exceeded.
type recentIDSet struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

func newRecentIDSet() *recentIDSet {
	return &recentIDSet{seen: make(map[string]struct{})}
}

// SeenOrRecord returns true if id was already recorded (a duplicate
// delivery to ignore), else records it and returns false.
func (s *recentIDSet) SeenOrRecord(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > recentIDTrimAt {
		half := len(s.order) / 2
		for _, old := range s.order[:half] {
			delete(s.seen, old)
		}
		s.order = append([]string{}, s.order[half:]...)
	}
	return false
}

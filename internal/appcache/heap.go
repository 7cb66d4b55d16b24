package appcache

import "container/heap"

// expiryHeap is a container/heap min-heap ordered by ExpiresAt, used
// by the background cleaner to find expired entries in O(log n)
// instead of scanning the whole map every tick. Entries are marked
// `removed` instead of spliced out of the slice on eviction/delete, so
// popping a stale heap node is a cheap no-op rather than an error
// (spec.md §4.10: "ignoring entries already removed").
type expiryHeap []*Entry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	return h[i].ExpiresAt.Before(h[j].ExpiresAt)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*expiryHeap)(nil)

package snapshot

import "sync"

// Refs is the single ref-id allocation authority for a session. Both the
// reader (ref_<n>) and the finder (found_<n>) draw ordinals from the same
// per-tab counter, so no two elements in a tab can ever share an id and ids
// are never reused for the tab's lifetime.
type Refs struct {
	mu   sync.Mutex
	next map[int]int
}

func NewRefs() *Refs {
	return &Refs{next: map[int]int{}}
}

// peek returns the next unallocated ordinal for the tab, starting at 1.
func (r *Refs) peek(tabID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.next[tabID]; ok {
		return n
	}
	return 1
}

// advance records that `used` ordinals starting at peek() were consumed.
func (r *Refs) advance(tabID, used int) {
	if used <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.next[tabID]
	if !ok {
		n = 1
	}
	r.next[tabID] = n + used
}

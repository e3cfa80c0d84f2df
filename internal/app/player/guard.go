package player

// RecentPlayGuard is a bounded FIFO set of track ids recently issued as
// play commands, used to suppress duplicate rapid-fire play requests.
// This is a heuristic, not a correctness-critical structure.
//
// Not safe for concurrent use; the controller guards it with its own lock.
type RecentPlayGuard struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewRecentPlayGuard creates a guard with the given capacity.
func NewRecentPlayGuard(capacity int) *RecentPlayGuard {
	if capacity <= 0 {
		capacity = 1
	}
	return &RecentPlayGuard{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

// Contains reports whether the track id is in the guard set.
func (g *RecentPlayGuard) Contains(trackID string) bool {
	_, ok := g.seen[trackID]
	return ok
}

// Add inserts a track id, evicting the oldest entry when at capacity.
// Adding an id already present keeps its original position.
func (g *RecentPlayGuard) Add(trackID string) {
	if trackID == "" || g.Contains(trackID) {
		return
	}
	if len(g.order) >= g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.order = append(g.order, trackID)
	g.seen[trackID] = struct{}{}
}

// Len returns the number of tracked ids.
func (g *RecentPlayGuard) Len() int {
	return len(g.order)
}

// Reset clears the guard.
func (g *RecentPlayGuard) Reset() {
	g.order = nil
	g.seen = make(map[string]struct{})
}

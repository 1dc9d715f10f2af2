// Package registry tracks expected and unknown client IDs for the
// coordinator: last-seen timestamps, unresponsive detection, and a
// bounded-capacity record of unknown (unexpected) client sightings.
//
// A Registry is owned exclusively by the coordinator's event loop, the same
// way the coordinator owns CoordinatorState and current_token (spec.md §3);
// it carries no mutex, unlike the teacher's peerStates map, because nothing
// outside that loop ever touches it directly (see DESIGN.md).
package registry

import (
	"container/list"
	"time"
)

// Registry tracks last-seen timestamps for expected and unknown clients.
type Registry struct {
	expected   map[string]struct{}
	lastSeen   map[string]time.Time
	unknownCap int
	unknown    *list.List // front = most-recently-seen unknown, back = oldest
	unknownPos map[string]*list.Element
}

// New builds a Registry whose expected set is fixed at construction time,
// per spec.md §3 ("The set of expected client IDs is fixed at configuration
// time"). unknownCap bounds the number of unknown IDs tracked at once
// (spec.md §4.4 default 100).
func New(expectedIDs []string, unknownCap int) *Registry {
	expected := make(map[string]struct{}, len(expectedIDs))
	for _, id := range expectedIDs {
		expected[id] = struct{}{}
	}
	return &Registry{
		expected:   expected,
		lastSeen:   make(map[string]time.Time),
		unknownCap: unknownCap,
		unknown:    list.New(),
		unknownPos: make(map[string]*list.Element),
	}
}

// Known reports whether id is in the fixed expected set.
func (r *Registry) Known(id string) bool {
	_, ok := r.expected[id]
	return ok
}

// Seen records that id sent a message of any kind at now.
func (r *Registry) Seen(id string, now time.Time) {
	r.lastSeen[id] = now
	if elem, ok := r.unknownPos[id]; ok {
		r.unknown.MoveToFront(elem)
	}
}

// NoteUnknown records id as an unknown (unexpected) client sighting at now.
// When the unknown set is at capacity, the oldest (by last-seen) unknown id
// is evicted along with its last_seen entry, preserving
// |unknown_ids| <= unknownCap (spec.md §4.4, §8 invariant 3). It reports
// whether an id other than the new one was evicted, and which.
func (r *Registry) NoteUnknown(id string, now time.Time) (evicted string, didEvict bool) {
	r.Seen(id, now)

	if _, already := r.unknownPos[id]; already {
		return "", false
	}

	if r.unknownCap <= 0 {
		return "", false
	}

	elem := r.unknown.PushFront(id)
	r.unknownPos[id] = elem

	if r.unknown.Len() <= r.unknownCap {
		return "", false
	}

	oldest := r.unknown.Back()
	oldestID := oldest.Value.(string)
	r.unknown.Remove(oldest)
	delete(r.unknownPos, oldestID)
	delete(r.lastSeen, oldestID)
	return oldestID, true
}

// UnknownIDs returns every unknown id currently tracked, most-recently-seen
// first.
func (r *Registry) UnknownIDs() []string {
	out := make([]string, 0, r.unknown.Len())
	for e := r.unknown.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(string))
	}
	return out
}

// ExpectedIDs returns every expected client id, in no particular order.
func (r *Registry) ExpectedIDs() []string {
	out := make([]string, 0, len(r.expected))
	for id := range r.expected {
		out = append(out, id)
	}
	return out
}

// UnseenClients returns expected clients that have never sent a message.
func (r *Registry) UnseenClients() []string {
	var out []string
	for id := range r.expected {
		if _, ok := r.lastSeen[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Unresponsive client pairs an expected client id with its last-seen time.
type Unresponsive struct {
	ID       string
	LastSeen time.Time
}

// UnresponsiveClients returns every expected client whose last-seen
// timestamp is at least threshold old as of now. A client never seen is not
// reported, so a zero threshold reports every expected client that has been
// seen at least once,
// and with an infinite threshold reports none (spec.md §8 invariant 6).
func (r *Registry) UnresponsiveClients(now time.Time, threshold time.Duration) []Unresponsive {
	var out []Unresponsive
	for id := range r.expected {
		last, ok := r.lastSeen[id]
		if !ok {
			continue
		}
		if now.Sub(last) >= threshold {
			out = append(out, Unresponsive{ID: id, LastSeen: last})
		}
	}
	return out
}

// LastSeen returns the last-seen time for id and whether it has been seen.
func (r *Registry) LastSeen(id string) (time.Time, bool) {
	t, ok := r.lastSeen[id]
	return t, ok
}

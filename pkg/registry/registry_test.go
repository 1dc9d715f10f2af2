package registry

import (
	"testing"
	"time"
)

func TestKnownAndUnseen(t *testing.T) {
	r := New([]string{"c1", "c2"}, 100)

	if !r.Known("c1") {
		t.Error("c1 should be known")
	}
	if r.Known("x") {
		t.Error("x should not be known")
	}

	unseen := r.UnseenClients()
	if len(unseen) != 2 {
		t.Fatalf("expected 2 unseen clients, got %d", len(unseen))
	}

	r.Seen("c1", time.Now())
	unseen = r.UnseenClients()
	if len(unseen) != 1 || unseen[0] != "c2" {
		t.Errorf("expected only c2 unseen, got %v", unseen)
	}
}

func TestUnresponsiveThresholdZeroAndInfinite(t *testing.T) {
	r := New([]string{"c1", "c2"}, 100)
	now := time.Now()
	r.Seen("c1", now.Add(-time.Hour))
	// c2 never seen.

	zero := r.UnresponsiveClients(now, 0)
	if len(zero) != 1 || zero[0].ID != "c1" {
		t.Errorf("threshold=0: want only c1 (seen at least once), got %v", zero)
	}

	infinite := r.UnresponsiveClients(now, time.Duration(1)<<62)
	if len(infinite) != 0 {
		t.Errorf("threshold=infinite: want none, got %v", infinite)
	}
}

func TestUnresponsiveExactThreshold(t *testing.T) {
	r := New([]string{"c1"}, 100)
	now := time.Now()
	r.Seen("c1", now.Add(-30*time.Second))

	got := r.UnresponsiveClients(now, 30*time.Second)
	if len(got) != 1 {
		t.Fatalf("expected c1 unresponsive at exact threshold, got %v", got)
	}

	got = r.UnresponsiveClients(now, 31*time.Second)
	if len(got) != 0 {
		t.Fatalf("expected no unresponsive clients just under threshold, got %v", got)
	}
}

func TestNoteUnknownBoundedCapacityEvictsOldest(t *testing.T) {
	r := New(nil, 2)
	now := time.Now()

	if _, evicted := r.NoteUnknown("x1", now); evicted {
		t.Fatal("unexpected eviction before reaching capacity")
	}
	if _, evicted := r.NoteUnknown("x2", now.Add(time.Second)); evicted {
		t.Fatal("unexpected eviction before reaching capacity")
	}

	evictedID, evicted := r.NoteUnknown("x3", now.Add(2*time.Second))
	if !evicted || evictedID != "x1" {
		t.Fatalf("expected x1 evicted, got evicted=%v id=%q", evicted, evictedID)
	}

	ids := r.UnknownIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 unknown ids after eviction, got %d: %v", len(ids), ids)
	}

	if _, stillThere := r.LastSeen("x1"); stillThere {
		t.Error("evicted unknown id must have no dangling last_seen entry")
	}
}

func TestNoteUnknownReseenDoesNotDuplicateOrEvictItself(t *testing.T) {
	r := New(nil, 2)
	now := time.Now()

	r.NoteUnknown("x1", now)
	r.NoteUnknown("x2", now.Add(time.Second))
	// Re-seeing x1 should refresh it, not evict it or duplicate it.
	if _, evicted := r.NoteUnknown("x1", now.Add(2*time.Second)); evicted {
		t.Fatal("re-seeing an existing unknown id should never evict")
	}

	ids := r.UnknownIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 unknown ids, got %d: %v", len(ids), ids)
	}

	// x1 was refreshed most-recently, so x2 is now the oldest and should be
	// evicted next.
	evictedID, evicted := r.NoteUnknown("x3", now.Add(3*time.Second))
	if !evicted || evictedID != "x2" {
		t.Fatalf("expected x2 evicted after x1 refresh, got evicted=%v id=%q", evicted, evictedID)
	}
}

func TestNoteUnknownCapacityNeverExceeded(t *testing.T) {
	r := New(nil, 3)
	now := time.Now()

	for i := 0; i < 50; i++ {
		r.NoteUnknown(string(rune('a'+i%26)), now.Add(time.Duration(i)*time.Second))
		if len(r.UnknownIDs()) > 3 {
			t.Fatalf("unknown set exceeded capacity at iteration %d: %v", i, r.UnknownIDs())
		}
	}
}

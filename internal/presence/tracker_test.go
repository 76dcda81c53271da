package presence

import (
	"testing"
	"time"
)

func TestRecord_BasicTracking(t *testing.T) {
	tr := New()

	tr.Record(Activity{ClientID: "alice", Operation: "create_group", Version: 4})

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	e := roster[0]
	if e.ClientID != "alice" {
		t.Errorf("expected client alice, got %s", e.ClientID)
	}
	if e.LastOperation != "create_group" || e.LastVersion != 4 {
		t.Errorf("unexpected last activity: %+v", e)
	}
	if e.EditCount != 1 {
		t.Errorf("expected edit_count 1, got %d", e.EditCount)
	}
}

func TestRecord_UpdatesExistingEditor(t *testing.T) {
	tr := New()

	tr.Record(Activity{ClientID: "bob", Operation: "create_group", Version: 1})
	tr.Record(Activity{ClientID: "bob", Operation: "add_keyword", Version: 3})
	// A relayed event can arrive late; the version never goes backwards.
	tr.Record(Activity{ClientID: "bob", Operation: "rename_group", Version: 2})

	roster := tr.Roster(0)
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	e := roster[0]
	if e.EditCount != 3 {
		t.Errorf("expected 3 edits, got %d", e.EditCount)
	}
	if e.LastOperation != "rename_group" || e.LastVersion != 3 {
		t.Errorf("unexpected last activity: %+v", e)
	}
}

func TestRecord_IgnoresEmptyClient(t *testing.T) {
	tr := New()
	tr.Record(Activity{Operation: "batch"})
	if n := len(tr.Roster(0)); n != 0 {
		t.Fatalf("expected 0 entries for empty client, got %d", n)
	}
}

func TestRoster_StaleThreshold(t *testing.T) {
	tr := New()
	tr.Record(Activity{ClientID: "old"})
	tr.Record(Activity{ClientID: "new"})

	tr.mu.Lock()
	tr.editors["old"].lastSeen = time.Now().Add(-20 * time.Minute)
	tr.mu.Unlock()

	roster := tr.Roster(10 * time.Minute)
	if len(roster) != 1 || roster[0].ClientID != "new" {
		t.Fatalf("expected only new, got %+v", roster)
	}
	if all := tr.Roster(0); len(all) != 2 {
		t.Fatalf("expected 2 entries without threshold, got %d", len(all))
	}
}

func TestRoster_SortedByMostRecent(t *testing.T) {
	tr := New()
	for _, id := range []string{"first", "second", "third"} {
		tr.Record(Activity{ClientID: id})
		time.Sleep(5 * time.Millisecond)
	}

	roster := tr.Roster(0)
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}
	if roster[0].ClientID != "third" || roster[2].ClientID != "first" {
		t.Errorf("unexpected order: %s, %s, %s", roster[0].ClientID, roster[1].ClientID, roster[2].ClientID)
	}
}

func TestSweep_MarksIdleAndEvicts(t *testing.T) {
	tr := New()
	tr.Record(Activity{ClientID: "quiet"})
	tr.Record(Activity{ClientID: "busy"})

	tr.mu.Lock()
	tr.editors["quiet"].lastSeen = time.Now().Add(-20 * time.Minute)
	tr.mu.Unlock()

	var idle []string
	cfg := &ReaperConfig{
		IdleThreshold: 15 * time.Minute,
		EvictAfter:    30 * time.Minute,
		SweepInterval: time.Second,
		OnIdle:        func(id string) { idle = append(idle, id) },
	}
	tr.sweep(cfg)

	if len(idle) != 1 || idle[0] != "quiet" {
		t.Fatalf("expected quiet to go idle, got %v", idle)
	}
	for _, e := range tr.Roster(0) {
		if e.ClientID == "quiet" && !e.Idle {
			t.Error("quiet should be marked idle")
		}
		if e.ClientID == "busy" && e.Idle {
			t.Error("busy should not be idle")
		}
	}

	// A second sweep does not report it again.
	idle = nil
	tr.sweep(cfg)
	if len(idle) != 0 {
		t.Errorf("expected no new idle editors, got %v", idle)
	}

	tr.mu.Lock()
	tr.editors["quiet"].idleSince = time.Now().Add(-31 * time.Minute)
	tr.mu.Unlock()
	tr.sweep(cfg)
	if n := len(tr.Roster(0)); n != 1 {
		t.Errorf("expected quiet to be evicted, roster has %d entries", n)
	}
}

func TestRecord_ReactivatesIdleEditor(t *testing.T) {
	tr := New()
	tr.Record(Activity{ClientID: "carol"})

	tr.mu.Lock()
	tr.editors["carol"].idle = true
	tr.editors["carol"].idleSince = time.Now()
	tr.mu.Unlock()

	tr.Record(Activity{ClientID: "carol", Operation: "batch"})
	roster := tr.Roster(0)
	if len(roster) != 1 || roster[0].Idle {
		t.Errorf("carol should be active again: %+v", roster)
	}
}

func TestStartReaper_StopsCleanly(t *testing.T) {
	tr := New()
	tr.StartReaper(&ReaperConfig{SweepInterval: 10 * time.Millisecond})
	time.Sleep(30 * time.Millisecond)
	tr.Stop()
	// Stopping twice is harmless.
	tr.Stop()
}

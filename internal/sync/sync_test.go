package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// mockDestination records calls to Write.
type mockDestination struct {
	mu       gosync.Mutex
	versions []int64
	last     []byte
	fail     atomic.Bool
}

func (d *mockDestination) Write(_ context.Context, version int64, data []byte) error {
	if d.fail.Load() {
		return errors.New("destination unavailable")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.versions = append(d.versions, version)
	d.last = append([]byte(nil), data...)
	return nil
}

func (d *mockDestination) writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.versions)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	exp := &fakeExporter{doc: docAt(3, "animal")}
	dest := &mockDestination{}

	sched := NewScheduler(exp, []Destination{dest}, 20*time.Millisecond, testLogger())
	sched.Start()
	time.Sleep(100 * time.Millisecond)
	sched.Stop()

	// Unchanged rules are written once no matter how many ticks ran.
	if exp.calls < 2 {
		t.Fatalf("expected several export attempts, got %d", exp.calls)
	}
	if n := dest.writes(); n != 1 {
		t.Fatalf("expected 1 write, got %d", n)
	}
	if len(dest.last) == 0 {
		t.Fatal("expected non-empty data")
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&fakeExporter{}, nil, time.Minute, testLogger())
	sched.Stop()
}

func TestSyncOnce_WritesWhenRulesChange(t *testing.T) {
	ctx := context.Background()
	exp := &fakeExporter{doc: docAt(1, "animal")}
	d1, d2 := &mockDestination{}, &mockDestination{}
	sched := NewScheduler(exp, []Destination{d1, d2}, time.Minute, testLogger())

	if !sched.SyncOnce(ctx) {
		t.Fatal("first sync should write")
	}
	if sched.SyncOnce(ctx) {
		t.Fatal("unchanged rules should be skipped")
	}

	exp.doc = docAt(2, "animal", "plant")
	if !sched.SyncOnce(ctx) {
		t.Fatal("new version should write")
	}

	// An import can bring back an old version number with other content.
	exp.doc = docAt(2, "fungus")
	if !sched.SyncOnce(ctx) {
		t.Fatal("changed content at the same version should write")
	}

	for _, d := range []*mockDestination{d1, d2} {
		if len(d.versions) != 3 || d.versions[0] != 1 || d.versions[2] != 2 {
			t.Fatalf("unexpected writes: %v", d.versions)
		}
	}
}

func TestSyncOnce_RetriesAfterFailedWrite(t *testing.T) {
	ctx := context.Background()
	exp := &fakeExporter{doc: docAt(5, "animal")}
	dest := &mockDestination{}
	dest.fail.Store(true)
	sched := NewScheduler(exp, []Destination{dest}, time.Minute, testLogger())

	sched.SyncOnce(ctx)
	dest.fail.Store(false)
	if !sched.SyncOnce(ctx) || dest.writes() != 1 {
		t.Fatalf("expected the failed export to be retried, got %d writes", dest.writes())
	}
}

func TestSyncOnce_ExportError(t *testing.T) {
	exp := &fakeExporter{err: model.ErrNotFound}
	dest := &mockDestination{}
	sched := NewScheduler(exp, []Destination{dest}, time.Minute, testLogger())
	if sched.SyncOnce(context.Background()) {
		t.Fatal("expected nothing written")
	}
	if dest.writes() != 0 {
		t.Fatal("destination should not be called")
	}
}

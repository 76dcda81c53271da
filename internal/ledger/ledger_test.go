package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
	"github.com/alfredjeanlab/tagrules/internal/store/sqlite"
)

func newTestLedger(t *testing.T) (*Ledger, store.Store) {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func createGroup(name string) MutateFunc {
	return func(ctx context.Context, tx store.Store) (string, error) {
		g := &model.Group{Name: name, Enabled: true}
		if err := tx.CreateGroup(ctx, g); err != nil {
			return "", err
		}
		return fmt.Sprintf("id=%d", g.ID), nil
	}
}

func TestGuardedMutate_AdvancesVersion(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	v, err := l.GuardedMutate(ctx, Mutation{BaseVersion: 0, ClientID: "alice", Operation: model.OpCreateGroup}, createGroup("a"))
	if err != nil {
		t.Fatalf("GuardedMutate: %v", err)
	}
	if v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
	cur, _ := l.Current(ctx)
	if cur != 1 {
		t.Errorf("Current = %d, want 1", cur)
	}

	log, err := l.History(ctx, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(log) != 1 || log[0].VersionID != 1 || log[0].ClientID != "alice" || log[0].Operation != model.OpCreateGroup {
		t.Errorf("History = %+v", log)
	}
}

func TestGuardedMutate_StaleBaseConflicts(t *testing.T) {
	ctx := context.Background()
	l, s := newTestLedger(t)

	if _, err := l.GuardedMutate(ctx, Mutation{BaseVersion: 0, ClientID: "alice", Operation: model.OpCreateGroup}, createGroup("a")); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := l.GuardedMutate(ctx, Mutation{BaseVersion: 0, ClientID: "bob", Operation: model.OpCreateGroup}, createGroup("b"))

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.BaseVersion != 0 || conflict.CurrentVersion != 1 {
		t.Errorf("conflict = %+v", conflict)
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}

	groups, _ := s.ListGroups(ctx)
	if len(groups) != 1 {
		t.Errorf("conflicting write leaked: groups = %+v", groups)
	}
	n, _ := l.ModifiersSince(ctx, 0)
	if n != 1 {
		t.Errorf("ModifiersSince(0) = %d, want 1", n)
	}
}

func TestGuardedMutate_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	l, s := newTestLedger(t)
	boom := errors.New("boom")

	_, err := l.GuardedMutate(ctx, Mutation{ClientID: "alice", Operation: model.OpCreateGroup},
		func(ctx context.Context, tx store.Store) (string, error) {
			if _, err := createGroup("a")(ctx, tx); err != nil {
				return "", err
			}
			return "", boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	cur, _ := l.Current(ctx)
	groups, _ := s.ListGroups(ctx)
	log, _ := l.History(ctx, 0, 0)
	if cur != 0 || len(groups) != 0 || len(log) != 0 {
		t.Errorf("after rollback: version=%d groups=%d log=%d", cur, len(groups), len(log))
	}
}

func TestGuardedMutate_NoChangeKeepsVersion(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	v, err := l.GuardedMutate(ctx, Mutation{ClientID: "alice", Operation: model.OpBatch},
		func(context.Context, store.Store) (string, error) { return "", ErrNoChange })
	if err != nil {
		t.Fatalf("GuardedMutate: %v", err)
	}
	if v != 0 {
		t.Errorf("version = %d, want 0", v)
	}
	log, _ := l.History(ctx, 0, 0)
	if len(log) != 0 {
		t.Errorf("log = %+v, want empty", log)
	}
}

func TestGuardedMutate_RequiresClientID(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.GuardedMutate(context.Background(), Mutation{Operation: model.OpCreateGroup}, createGroup("a"))
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGuardedMutate_ConcurrentSameBaseExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	l, s := newTestLedger(t)

	const writers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := fmt.Sprintf("client-%d", i)
			_, err := l.GuardedMutate(ctx, Mutation{BaseVersion: 0, ClientID: client, Operation: model.OpCreateGroup}, createGroup(client))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("writer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Errorf("wins=%d conflicts=%d, want 1 and %d", wins, conflicts, writers-1)
	}
	cur, _ := l.Current(ctx)
	groups, _ := s.ListGroups(ctx)
	if cur != 1 || len(groups) != 1 {
		t.Errorf("version=%d groups=%d, want 1 and 1", cur, len(groups))
	}
}

func TestGuardedMutate_VersionEqualsLogRows(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	for i := 0; i < 5; i++ {
		cur, _ := l.Current(ctx)
		if _, err := l.GuardedMutate(ctx, Mutation{BaseVersion: cur, ClientID: "alice", Operation: model.OpCreateGroup}, createGroup("g")); err != nil {
			t.Fatalf("mutation %d: %v", i, err)
		}
	}
	cur, _ := l.Current(ctx)
	log, _ := l.History(ctx, 0, 100)
	if cur != 5 || int64(len(log)) != cur {
		t.Errorf("version=%d log rows=%d", cur, len(log))
	}
	for i, e := range log {
		if e.VersionID != int64(i+1) {
			t.Errorf("log[%d].VersionID = %d", i, e.VersionID)
		}
	}
}

func TestReset_AdoptsImportedVersion(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	for i := int64(0); i < 3; i++ {
		if _, err := l.GuardedMutate(ctx, Mutation{BaseVersion: i, ClientID: "alice", Operation: model.OpCreateGroup}, createGroup("g")); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	v, err := l.Reset(ctx, "admin", func(ctx context.Context, tx store.Store) (int64, string, error) {
		return 40, "groups=0", tx.ClearRules(ctx)
	})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if v != 40 {
		t.Errorf("version = %d, want 40", v)
	}
	log, _ := l.History(ctx, 0, 0)
	if len(log) != 1 || log[0].VersionID != 40 || log[0].Operation != model.OpImport {
		t.Errorf("log after reset = %+v", log)
	}

	// Writers continue from the imported version.
	v, err = l.GuardedMutate(ctx, Mutation{BaseVersion: 40, ClientID: "bob", Operation: model.OpCreateGroup}, createGroup("h"))
	if err != nil || v != 41 {
		t.Errorf("after reset GuardedMutate = (%d, %v), want (41, nil)", v, err)
	}
	if r, err := l.Revision(ctx); err != nil || r != (model.Revision{Epoch: 1, Version: 41}) {
		t.Errorf("Revision = (%+v, %v), want {1 41}", r, err)
	}
}

func TestReset_BumpsEpochEvenForSameVersion(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	for want := int64(1); want <= 2; want++ {
		if _, err := l.Reset(ctx, "admin", func(ctx context.Context, tx store.Store) (int64, string, error) {
			return 0, "", tx.ClearRules(ctx)
		}); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		r, _ := l.Revision(ctx)
		if r != (model.Revision{Epoch: want, Version: 0}) {
			t.Errorf("after reset %d revision = %+v", want, r)
		}
	}

	// Guarded edits leave the epoch alone.
	if _, err := l.GuardedMutate(ctx, Mutation{BaseVersion: 0, ClientID: "bob", Operation: model.OpCreateGroup}, createGroup("h")); err != nil {
		t.Fatalf("GuardedMutate: %v", err)
	}
	if r, _ := l.Revision(ctx); r != (model.Revision{Epoch: 2, Version: 1}) {
		t.Errorf("after edit revision = %+v, want {2 1}", r)
	}
}

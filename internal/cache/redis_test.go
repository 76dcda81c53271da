package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, s
}

func sampleTree() *model.Tree {
	groups := []*model.Group{{ID: 1, Name: "animal", Enabled: true}, {ID: 2, Name: "dog", Enabled: true}}
	keywords := []*model.Keyword{{ID: 5, GroupID: 2, Text: "puppy", Enabled: true}}
	edges := []model.Edge{{ParentID: 1, ChildID: 2}}
	return model.BuildTree(7, groups, keywords, edges)
}

func TestNewRedisCache_BadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url"); err == nil {
		t.Error("expected an error for an invalid url")
	}
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestCache(t)
	if _, err := c.Get(context.Background(), model.Revision{Version: 1}); !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}

func TestPutThenGet(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t)

	if err := c.Put(ctx, sampleTree()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !s.Exists("tagrules:tree:7") {
		t.Fatal("snapshot key not written")
	}
	if ttl := s.TTL("tagrules:tree:7"); ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", ttl, DefaultTTL)
	}

	got, err := c.Get(ctx, model.Revision{Version: 7})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 7 || len(got.Roots) != 1 {
		t.Fatalf("tree = %+v", got)
	}
	dog := got.Find(2)
	if dog == nil || len(dog.Keywords) != 1 || dog.Keywords[0].Text != "puppy" {
		t.Errorf("dog node = %+v", dog)
	}

	// Other versions are still misses.
	if _, err := c.Get(ctx, model.Revision{Version: 8}); !errors.Is(err, ErrMiss) {
		t.Errorf("Get(8) err = %v, want ErrMiss", err)
	}
}

func TestGet_Expired(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t)
	if err := c.Put(ctx, sampleTree()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.FastForward(DefaultTTL + 1)
	if _, err := c.Get(ctx, model.Revision{Version: 7}); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after expiry", err)
	}
}

func TestGet_CorruptEntry(t *testing.T) {
	c, s := setupTestCache(t)
	s.Set("tagrules:tree:3", "{not json")
	if _, err := c.Get(context.Background(), model.Revision{Version: 3}); err == nil || errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want a decode error", err)
	}
}

func TestEpochSeparatesReusedVersion(t *testing.T) {
	ctx := context.Background()
	c, s := setupTestCache(t)

	if err := c.Put(ctx, sampleTree()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	imported := model.BuildTree(7, []*model.Group{{ID: 9, Name: "imported", Enabled: true}}, nil, nil)
	imported.Epoch = 1
	if err := c.Put(ctx, imported); err != nil {
		t.Fatalf("Put imported: %v", err)
	}
	if !s.Exists("tagrules:tree:7@1") {
		t.Fatal("epoch key not written")
	}

	got, err := c.Get(ctx, model.Revision{Epoch: 1, Version: 7})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Epoch != 1 || len(got.Roots) != 1 || got.Roots[0].Name != "imported" {
		t.Errorf("tree = %+v", got)
	}
	old, _ := c.Get(ctx, model.Revision{Version: 7})
	if old == nil || old.Roots[0].Name != "animal" {
		t.Errorf("epoch 0 entry = %+v", old)
	}
	if _, err := c.Get(ctx, model.Revision{Epoch: 2, Version: 7}); !errors.Is(err, ErrMiss) {
		t.Errorf("Get(7@2) err = %v, want ErrMiss", err)
	}
}

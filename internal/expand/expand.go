// Package expand turns literal search tags into the full set of tags implied
// by the rule hierarchy.
package expand

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/tagrules/internal/metrics"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Result is the outcome of an expansion.
type Result struct {
	// Tags is the literal tags plus every discovered keyword, sorted and
	// de-duplicated.
	Tags []string `json:"tags"`
	// Matched lists the literal tags that hit at least one enabled group.
	Matched []string `json:"matched"`
	Version int64    `json:"version"`
}

// Expander answers expansions from an index it reloads whenever the rules
// revision moves.
type Expander struct {
	store store.Store

	mu     sync.RWMutex
	index  *Index
	flight singleflight.Group
}

// New returns an Expander reading from s.
func New(s store.Store) *Expander {
	return &Expander{store: s}
}

// Expand returns tags together with the keywords of every enabled group
// reachable from a group that owns one of them. Discovered keywords are fed
// back in until nothing new appears, so expanding the result again returns
// the same set. Blank tags are dropped and tags are trimmed.
func (e *Expander) Expand(ctx context.Context, tags []string) (*Result, error) {
	start := time.Now()
	idx, err := e.Index(ctx)
	if err != nil {
		return nil, err
	}
	res := Expand(idx, tags)
	metrics.ObserveExpansion(time.Since(start))
	return res, nil
}

// Expand runs an expansion against a fixed index.
func Expand(idx *Index, tags []string) *Result {
	out := make(map[string]bool)
	var queue []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || out[t] {
			continue
		}
		out[t] = true
		queue = append(queue, t)
	}
	literal := make(map[string]bool, len(out))
	for t := range out {
		literal[t] = true
	}

	matched := make(map[string]bool)
	visited := make(map[int64]bool)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, g := range idx.enabledOwners(t) {
			if literal[t] {
				matched[t] = true
			}
			if visited[g] {
				continue
			}
			visited[g] = true
			for _, d := range idx.reachable(g) {
				for _, text := range idx.texts[d] {
					if !out[text] {
						out[text] = true
						queue = append(queue, text)
					}
				}
			}
		}
	}

	return &Result{Tags: sortedKeys(out), Matched: sortedKeys(matched), Version: idx.Version}
}

// Index returns the index for the committed revision, loading it from the
// store when the revision has moved. Concurrent loads for the same revision
// share one read, which outlives any single caller's cancellation.
func (e *Expander) Index(ctx context.Context) (*Index, error) {
	rev, err := e.store.GetRevision(ctx)
	if err != nil {
		return nil, fmt.Errorf("expand: read version: %w", err)
	}

	e.mu.RLock()
	idx := e.index
	e.mu.RUnlock()
	if idx != nil && idx.Revision() == rev {
		metrics.RecordIndexLoad("memory")
		return idx, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(rev.String(), func() (any, error) {
		return e.load(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

func (e *Expander) load(ctx context.Context) (*Index, error) {
	var idx *Index
	err := e.store.ReadSnapshot(ctx, func(tx store.Store) error {
		rev, err := tx.GetRevision(ctx)
		if err != nil {
			return err
		}
		groups, err := tx.ListGroups(ctx)
		if err != nil {
			return err
		}
		keywords, err := tx.ListKeywords(ctx)
		if err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		closure, err := tx.ListClosure(ctx)
		if err != nil {
			return err
		}
		idx = NewIndex(rev.Version, groups, keywords, edges, closure)
		idx.Epoch = rev.Epoch
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expand: load index: %w", err)
	}
	metrics.RecordIndexLoad("store")

	e.mu.Lock()
	e.index = idx
	e.mu.Unlock()
	return idx, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

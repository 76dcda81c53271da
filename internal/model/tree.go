package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Revision identifies one committed rule set. Version alone is not enough:
// an import may move the counter backwards, so Epoch counts imports and
// separates a reused version number from its earlier meaning.
type Revision struct {
	Epoch   int64 `json:"epoch"`
	Version int64 `json:"version"`
}

// String renders the revision as "<version>" in epoch 0 and
// "<version>@<epoch>" after the first import.
func (r Revision) String() string {
	if r.Epoch == 0 {
		return strconv.FormatInt(r.Version, 10)
	}
	return strconv.FormatInt(r.Version, 10) + "@" + strconv.FormatInt(r.Epoch, 10)
}

// ParseRevision is the inverse of Revision.String.
func ParseRevision(s string) (Revision, error) {
	vs, es, hasEpoch := strings.Cut(s, "@")
	v, err := strconv.ParseInt(vs, 10, 64)
	if err != nil || v < 0 {
		return Revision{}, fmt.Errorf("invalid revision %q", s)
	}
	r := Revision{Version: v}
	if hasEpoch {
		e, err := strconv.ParseInt(es, 10, 64)
		if err != nil || e < 0 {
			return Revision{}, fmt.Errorf("invalid revision %q", s)
		}
		r.Epoch = e
	}
	return r, nil
}

// GroupNode is a group placed in the rooted forest view. Every group is
// placed once, under its smallest parent id; ParentIDs and Tree.Edges carry
// the full multi-parent structure.
type GroupNode struct {
	ID                    int64        `json:"id"`
	Name                  string       `json:"name"`
	Enabled               bool         `json:"enabled"`
	LegacyDisplayParentID *int64       `json:"legacy_display_parent_id"`
	ParentIDs             []int64      `json:"parent_ids"`
	Keywords              []*Keyword   `json:"keywords"`
	Children              []*GroupNode `json:"children"`
}

// Tree is a read-only snapshot of the whole rule set at one version.
type Tree struct {
	Version int64        `json:"version"`
	Epoch   int64        `json:"epoch"`
	Roots   []*GroupNode `json:"roots"`
	Edges   []Edge       `json:"edges"`
}

// Revision returns the tree's epoch and version.
func (t *Tree) Revision() Revision {
	return Revision{Epoch: t.Epoch, Version: t.Version}
}

// BuildTree assembles the rooted forest from flat rows. Roots are groups
// without an incoming edge. Groups, keywords and children are ordered by id.
func BuildTree(version int64, groups []*Group, keywords []*Keyword, edges []Edge) *Tree {
	byGroup := make(map[int64][]*Keyword)
	for _, k := range keywords {
		byGroup[k.GroupID] = append(byGroup[k.GroupID], k)
	}
	for _, ks := range byGroup {
		sort.Slice(ks, func(i, j int) bool { return ks[i].ID < ks[j].ID })
	}

	known := make(map[int64]*Group, len(groups))
	for _, g := range groups {
		known[g.ID] = g
	}

	children := make(map[int64][]int64)
	parents := make(map[int64][]int64)
	for _, e := range edges {
		if known[e.ParentID] == nil || known[e.ChildID] == nil {
			continue
		}
		children[e.ParentID] = append(children[e.ParentID], e.ChildID)
		parents[e.ChildID] = append(parents[e.ChildID], e.ParentID)
	}
	for _, ids := range children {
		sortIDs(ids)
	}
	for _, ids := range parents {
		sortIDs(ids)
	}

	nodes := make(map[int64]*GroupNode, len(groups))
	ordered := make([]*Group, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, g := range ordered {
		kws := byGroup[g.ID]
		if kws == nil {
			kws = []*Keyword{}
		}
		pids := parents[g.ID]
		if pids == nil {
			pids = []int64{}
		}
		nodes[g.ID] = &GroupNode{
			ID:                    g.ID,
			Name:                  g.Name,
			Enabled:               g.Enabled,
			LegacyDisplayParentID: g.LegacyDisplayParentID,
			ParentIDs:             pids,
			Keywords:              kws,
			Children:              []*GroupNode{},
		}
	}
	// A node hangs under its first parent only, so the forest stays linear
	// in the number of groups however many diamonds the DAG has.
	for _, g := range ordered {
		for _, cid := range children[g.ID] {
			if parents[cid][0] == g.ID {
				nodes[g.ID].Children = append(nodes[g.ID].Children, nodes[cid])
			}
		}
	}

	t := &Tree{Version: version, Roots: []*GroupNode{}, Edges: edges}
	if t.Edges == nil {
		t.Edges = []Edge{}
	}
	for _, g := range ordered {
		if len(parents[g.ID]) == 0 {
			t.Roots = append(t.Roots, nodes[g.ID])
		}
	}
	return t
}

// Find returns the node with the given id.
func (t *Tree) Find(id int64) *GroupNode {
	stack := make([]*GroupNode, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		stack = append(stack, t.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ID == id {
			return n
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

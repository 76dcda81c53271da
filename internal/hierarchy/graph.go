// Package hierarchy maintains the group DAG: the authoritative edge list,
// the derived closure table and the single-parent display projection.
//
// Graph holds the traversal algorithms over an in-memory edge list; Store
// applies them to a store.Store inside the caller's transaction.
package hierarchy

import (
	"sort"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// Graph is an adjacency view of the groups and edges at one point in time.
type Graph struct {
	nodes    map[int64]struct{}
	children map[int64][]int64
	parents  map[int64][]int64
}

// NewGraph builds a graph over the given nodes. Edge endpoints are added as
// nodes when missing; duplicate edges are collapsed.
func NewGraph(nodes []int64, edges []model.Edge) *Graph {
	g := &Graph{
		nodes:    make(map[int64]struct{}, len(nodes)),
		children: make(map[int64][]int64),
		parents:  make(map[int64][]int64),
	}
	for _, id := range nodes {
		g.nodes[id] = struct{}{}
	}
	seen := make(map[model.Edge]struct{}, len(edges))
	for _, e := range edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.nodes[e.ParentID] = struct{}{}
		g.nodes[e.ChildID] = struct{}{}
		g.children[e.ParentID] = append(g.children[e.ParentID], e.ChildID)
		g.parents[e.ChildID] = append(g.parents[e.ChildID], e.ParentID)
	}
	for _, ids := range g.children {
		sortIDs(ids)
	}
	for _, ids := range g.parents {
		sortIDs(ids)
	}
	return g
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id int64) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every node id in ascending order.
func (g *Graph) Nodes() []int64 {
	ids := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Children returns the direct children of id in ascending order.
func (g *Graph) Children(id int64) []int64 { return g.children[id] }

// Parents returns the direct parents of id in ascending order.
func (g *Graph) Parents(id int64) []int64 { return g.parents[id] }

// Roots returns the nodes without an incoming edge, ascending.
func (g *Graph) Roots() []int64 {
	var roots []int64
	for _, id := range g.Nodes() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Reaches reports whether to is reachable from from by following
// parent -> child edges. Every node reaches itself.
func (g *Graph) Reaches(from, to int64) bool {
	if from == to {
		return true
	}
	visited := map[int64]struct{}{from: {}}
	stack := []int64{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.children[n] {
			if c == to {
				return true
			}
			if _, ok := visited[c]; ok {
				continue
			}
			visited[c] = struct{}{}
			stack = append(stack, c)
		}
	}
	return false
}

// WouldCycle reports whether adding parent -> child would close a cycle:
// either the edge is a self loop or child already reaches parent.
func (g *Graph) WouldCycle(parent, child int64) bool {
	return parent == child || g.Reaches(child, parent)
}

// Link adds parent -> child to the graph unless an endpoint is unknown, the
// edge already exists or it would close a cycle. It reports whether the edge
// was added.
func (g *Graph) Link(parent, child int64) bool {
	if !g.HasNode(parent) || !g.HasNode(child) || g.WouldCycle(parent, child) {
		return false
	}
	for _, c := range g.children[parent] {
		if c == child {
			return false
		}
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	sortIDs(g.children[parent])
	sortIDs(g.parents[child])
	return true
}

// Descendants returns id and every node reachable from it, in BFS order.
func (g *Graph) Descendants(id int64) []int64 {
	out := []int64{id}
	visited := map[int64]struct{}{id: {}}
	for i := 0; i < len(out); i++ {
		for _, c := range g.children[out[i]] {
			if _, ok := visited[c]; ok {
				continue
			}
			visited[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Closure computes the reflexive transitive closure with shortest-path
// depths, ordered by ancestor then descendant.
func (g *Graph) Closure() []model.ClosureRow {
	var rows []model.ClosureRow
	for _, a := range g.Nodes() {
		depth := map[int64]int{a: 0}
		queue := []int64{a}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, c := range g.children[n] {
				if _, ok := depth[c]; ok {
					continue
				}
				depth[c] = depth[n] + 1
				queue = append(queue, c)
			}
		}
		start := len(rows)
		for d, hops := range depth {
			rows = append(rows, model.ClosureRow{AncestorID: a, DescendantID: d, Depth: hops})
		}
		block := rows[start:]
		sort.Slice(block, func(i, j int) bool { return block[i].DescendantID < block[j].DescendantID })
	}
	return rows
}

// RepresentativeParents returns the display parent of every node: its
// smallest parent id, or nil for roots.
func (g *Graph) RepresentativeParents() map[int64]*int64 {
	out := make(map[int64]*int64, len(g.nodes))
	for id := range g.nodes {
		if ps := g.parents[id]; len(ps) > 0 {
			p := ps[0]
			out[id] = &p
		} else {
			out[id] = nil
		}
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

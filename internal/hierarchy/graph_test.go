package hierarchy

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

func edges(pairs ...int64) []model.Edge {
	out := make([]model.Edge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.Edge{ParentID: pairs[i], ChildID: pairs[i+1]})
	}
	return out
}

func TestWouldCycle(t *testing.T) {
	// 1 -> 2 -> 3
	g := NewGraph([]int64{1, 2, 3, 4}, edges(1, 2, 2, 3))

	for _, tc := range []struct {
		parent, child int64
		want          bool
	}{
		{3, 1, true},  // closes 1 -> 2 -> 3 -> 1
		{2, 1, true},  // direct back edge
		{1, 1, true},  // self loop
		{1, 3, false}, // shortcut is fine
		{4, 1, false},
		{3, 4, false},
	} {
		if got := g.WouldCycle(tc.parent, tc.child); got != tc.want {
			t.Errorf("WouldCycle(%d, %d) = %v, want %v", tc.parent, tc.child, got, tc.want)
		}
	}
}

func TestDescendants_Diamond(t *testing.T) {
	// 1 -> 2, 1 -> 3, 2 -> 4, 3 -> 4
	g := NewGraph(nil, edges(1, 2, 1, 3, 2, 4, 3, 4))
	got := g.Descendants(1)
	want := []int64{1, 2, 3, 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Descendants(1) = %v, want %v", got, want)
	}
	if got := g.Descendants(4); !reflect.DeepEqual(got, []int64{4}) {
		t.Errorf("Descendants(4) = %v", got)
	}
}

func TestClosure_ShortestDepth(t *testing.T) {
	// 1 -> 2 -> 3 and 1 -> 3
	g := NewGraph(nil, edges(1, 2, 2, 3, 1, 3))
	want := []model.ClosureRow{
		{AncestorID: 1, DescendantID: 1, Depth: 0},
		{AncestorID: 1, DescendantID: 2, Depth: 1},
		{AncestorID: 1, DescendantID: 3, Depth: 1},
		{AncestorID: 2, DescendantID: 2, Depth: 0},
		{AncestorID: 2, DescendantID: 3, Depth: 1},
		{AncestorID: 3, DescendantID: 3, Depth: 0},
	}
	if got := g.Closure(); !reflect.DeepEqual(got, want) {
		t.Errorf("Closure() = %v, want %v", got, want)
	}
}

func TestClosure_MatchesReachability(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 25

	nodes := make([]int64, n)
	for i := range nodes {
		nodes[i] = int64(i + 1)
	}
	// Only lower -> higher ids, so the random graph is acyclic.
	var es []model.Edge
	for i := 1; i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			if rng.Intn(6) == 0 {
				es = append(es, model.Edge{ParentID: int64(i), ChildID: int64(j)})
			}
		}
	}
	g := NewGraph(nodes, es)

	// Floyd-Warshall style reachability as the reference.
	var reach [n + 1][n + 1]bool
	for i := 1; i <= n; i++ {
		reach[i][i] = true
	}
	for _, e := range es {
		reach[e.ParentID][e.ChildID] = true
	}
	for k := 1; k <= n; k++ {
		for i := 1; i <= n; i++ {
			for j := 1; j <= n; j++ {
				if reach[i][k] && reach[k][j] {
					reach[i][j] = true
				}
			}
		}
	}

	got := make(map[[2]int64]bool)
	for _, r := range g.Closure() {
		got[[2]int64{r.AncestorID, r.DescendantID}] = true
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= n; j++ {
			if reach[i][j] != got[[2]int64{int64(i), int64(j)}] {
				t.Fatalf("closure(%d, %d) = %v, want %v", i, j, got[[2]int64{int64(i), int64(j)}], reach[i][j])
			}
			if reach[i][j] != g.Reaches(int64(i), int64(j)) {
				t.Fatalf("Reaches(%d, %d) disagrees with reference", i, j)
			}
		}
	}
}

func TestLink(t *testing.T) {
	g := NewGraph([]int64{1, 2, 3}, nil)
	if !g.Link(1, 2) || !g.Link(2, 3) {
		t.Fatal("expected links to be added")
	}
	for _, tc := range []struct {
		name          string
		parent, child int64
	}{
		{"duplicate", 1, 2},
		{"cycle", 3, 1},
		{"self", 2, 2},
		{"unknown node", 1, 9},
	} {
		if g.Link(tc.parent, tc.child) {
			t.Errorf("%s: Link(%d, %d) = true", tc.name, tc.parent, tc.child)
		}
	}
	if !g.Reaches(1, 3) {
		t.Error("1 should reach 3 after linking")
	}
}

func TestRootsAndRepresentativeParents(t *testing.T) {
	g := NewGraph([]int64{1, 2, 3, 5}, edges(3, 2, 1, 2, 1, 2))
	if got := g.Roots(); !reflect.DeepEqual(got, []int64{1, 3, 5}) {
		t.Errorf("Roots() = %v", got)
	}
	if got := g.Parents(2); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("Parents(2) = %v, duplicate edge should collapse", got)
	}

	reps := g.RepresentativeParents()
	if p := reps[2]; p == nil || *p != 1 {
		t.Errorf("representative parent of 2 = %v, want 1", p)
	}
	if reps[1] != nil || reps[5] != nil {
		t.Errorf("roots should have nil parent: %v %v", reps[1], reps[5])
	}
}

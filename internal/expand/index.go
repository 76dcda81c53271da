package expand

import (
	"sort"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// Index is an immutable, in-memory view of the rule set at one version,
// shaped for tag lookups.
type Index struct {
	Version int64
	Epoch   int64

	enabled  map[int64]bool
	texts    map[int64][]string // group -> keyword texts, enabled or not
	owners   map[string][]int64 // keyword text -> owning groups
	children map[int64][]int64
	closure  map[int64]map[int64]bool // ancestor -> descendants, reflexive
}

// Revision returns the rules revision the index was built from.
func (idx *Index) Revision() model.Revision {
	return model.Revision{Epoch: idx.Epoch, Version: idx.Version}
}

// NewIndex builds an Index from flat rows read in one snapshot.
func NewIndex(version int64, groups []*model.Group, keywords []*model.Keyword, edges []model.Edge, closure []model.ClosureRow) *Index {
	idx := &Index{
		Version:  version,
		enabled:  make(map[int64]bool, len(groups)),
		texts:    make(map[int64][]string),
		owners:   make(map[string][]int64),
		children: make(map[int64][]int64),
		closure:  make(map[int64]map[int64]bool),
	}
	for _, g := range groups {
		idx.enabled[g.ID] = g.Enabled
	}
	for _, k := range keywords {
		if _, ok := idx.enabled[k.GroupID]; !ok {
			continue
		}
		idx.texts[k.GroupID] = append(idx.texts[k.GroupID], k.Text)
		idx.owners[k.Text] = append(idx.owners[k.Text], k.GroupID)
	}
	for text, ids := range idx.owners {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		idx.owners[text] = ids
	}
	for _, e := range edges {
		idx.children[e.ParentID] = append(idx.children[e.ParentID], e.ChildID)
	}
	for _, r := range closure {
		d := idx.closure[r.AncestorID]
		if d == nil {
			d = make(map[int64]bool)
			idx.closure[r.AncestorID] = d
		}
		d[r.DescendantID] = true
	}
	return idx
}

// Groups returns how many groups the index holds.
func (idx *Index) Groups() int { return len(idx.enabled) }

// enabledOwners returns the enabled groups owning a keyword with text.
func (idx *Index) enabledOwners(text string) []int64 {
	var out []int64
	for _, id := range idx.owners[text] {
		if idx.enabled[id] {
			out = append(out, id)
		}
	}
	return out
}

// reachable returns the groups that contribute to an expansion matched at
// group g: g itself and every descendant reached along a path of enabled
// groups. The closure bounds the walk.
func (idx *Index) reachable(g int64) []int64 {
	if !idx.enabled[g] {
		return nil
	}
	within := idx.closure[g]
	seen := map[int64]bool{g: true}
	out := []int64{g}
	queue := []int64{g}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range idx.children[n] {
			if seen[c] || !within[c] || !idx.enabled[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

package ruletree

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/hierarchy"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/store"
)

// Export renders the rule set as a legacy interchange document.
func (s *Service) Export(ctx context.Context) (*model.LegacyExport, error) {
	doc := &model.LegacyExport{
		ExportTime: float64(time.Now().UnixMilli()) / 1000,
		Version:    model.LegacyFormatVersion,
		Images:     []any{},
		TagsDict:   []any{},
	}
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		v, err := tx.GetVersion(ctx)
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

		r := model.LegacyRules{
			VersionID: v,
			Groups:    make([]model.LegacyGroup, 0, len(groups)),
			Keywords:  make([]model.LegacyKeyword, 0, len(keywords)),
			Hierarchy: make([]model.LegacyHierarchy, 0, len(edges)),
		}
		for _, g := range groups {
			r.Groups = append(r.Groups, model.LegacyGroup{GroupID: g.ID, GroupName: g.Name, IsEnabled: model.LegacyBool(g.Enabled)})
		}
		for _, k := range keywords {
			r.Keywords = append(r.Keywords, model.LegacyKeyword{Keyword: k.Text, GroupID: k.GroupID, IsEnabled: model.LegacyBool(k.Enabled)})
		}
		for _, e := range edges {
			r.Hierarchy = append(r.Hierarchy, model.LegacyHierarchy{ParentID: e.ParentID, ChildID: e.ChildID})
		}
		doc.Rules = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return doc, nil
}

// Import replaces the whole rule set with doc. Group ids are preserved and
// the version is set to doc.Rules.VersionID. Keywords of unknown groups and
// hierarchy rows that reference unknown groups or would close a cycle are
// skipped and counted. Import is not guarded by a base version.
func (s *Service) Import(ctx context.Context, clientID string, doc *model.LegacyExport) (*model.ImportSummary, error) {
	if doc == nil {
		return nil, &model.ValidationError{Errors: []model.FieldError{{Field: "rules", Message: "is required"}}}
	}
	if err := validateImport(doc); err != nil {
		return nil, err
	}

	var sum model.ImportSummary
	v, err := s.ledger.Reset(ctx, clientID, func(ctx context.Context, tx store.Store) (int64, string, error) {
		sum = model.ImportSummary{}
		if err := loadRules(ctx, tx, &doc.Rules, &sum); err != nil {
			return 0, "", err
		}
		details := fmt.Sprintf("groups=%d keywords=%d edges=%d skipped_keywords=%d skipped_edges=%d",
			sum.Groups, sum.Keywords, sum.Edges, sum.SkippedKeywords, sum.SkippedEdges)
		return doc.Rules.VersionID, details, nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	sum.Version = v
	return &sum, nil
}

func validateImport(doc *model.LegacyExport) error {
	var ve model.ValidationError
	if doc.Version != "" && doc.Version != model.LegacyFormatVersion {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "version", Message: fmt.Sprintf("unsupported format %q", doc.Version)})
	}
	if doc.Rules.VersionID < 0 {
		ve.Errors = append(ve.Errors, model.FieldError{Field: "rules.version_id", Message: "must not be negative"})
	}
	seen := make(map[int64]bool, len(doc.Rules.Groups))
	for i, g := range doc.Rules.Groups {
		field := fmt.Sprintf("rules.groups[%d]", i)
		switch {
		case g.GroupID <= 0:
			ve.Errors = append(ve.Errors, model.FieldError{Field: field, Message: "group_id must be positive"})
		case seen[g.GroupID]:
			ve.Errors = append(ve.Errors, model.FieldError{Field: field, Message: fmt.Sprintf("duplicate group_id %d", g.GroupID)})
		}
		seen[g.GroupID] = true
		if err := model.ValidateGroupName(clean(g.GroupName)); err != nil {
			ve.Errors = append(ve.Errors, model.FieldError{Field: field, Message: "group_name is required"})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func loadRules(ctx context.Context, tx store.Store, r *model.LegacyRules, sum *model.ImportSummary) error {
	if err := tx.ClearRules(ctx); err != nil {
		return err
	}

	ids := make([]int64, 0, len(r.Groups))
	for _, lg := range r.Groups {
		g := &model.Group{ID: lg.GroupID, Name: clean(lg.GroupName), Enabled: bool(lg.IsEnabled)}
		if err := tx.InsertGroup(ctx, g); err != nil {
			return fmt.Errorf("group %d: %w", g.ID, err)
		}
		ids = append(ids, g.ID)
		sum.Groups++
	}
	graph := hierarchy.NewGraph(ids, nil)

	type key struct {
		group int64
		text  string
	}
	seen := make(map[key]bool, len(r.Keywords))
	for _, lk := range r.Keywords {
		text := clean(lk.Keyword)
		k := key{lk.GroupID, text}
		if !graph.HasNode(lk.GroupID) || model.ValidateKeywordText(text) != nil || seen[k] {
			sum.SkippedKeywords++
			continue
		}
		seen[k] = true
		if err := tx.CreateKeyword(ctx, &model.Keyword{GroupID: lk.GroupID, Text: text, Enabled: bool(lk.IsEnabled)}); err != nil {
			return fmt.Errorf("keyword %q: %w", text, err)
		}
		sum.Keywords++
	}

	for _, h := range r.Hierarchy {
		// Parent 0 marks a root; roots have no stored edge.
		if h.ParentID == model.RootParentID && graph.HasNode(h.ChildID) {
			continue
		}
		if !graph.Link(h.ParentID, h.ChildID) {
			sum.SkippedEdges++
			continue
		}
		if err := tx.AddEdge(ctx, model.Edge{ParentID: h.ParentID, ChildID: h.ChildID}); err != nil {
			return err
		}
		sum.Edges++
	}

	if err := hierarchy.New(tx).RebuildClosure(ctx); err != nil {
		return err
	}
	return tx.ResetSequences(ctx)
}

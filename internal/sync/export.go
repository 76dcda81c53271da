package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// Exporter produces the legacy interchange document for the current rule
// set. *ruletree.Service satisfies it.
type Exporter interface {
	Export(ctx context.Context) (*model.LegacyExport, error)
}

// ExportJSON writes the current rules to w as an indented legacy export
// document and returns the rules version it captured. The output is
// accepted unchanged by POST /v1/import.
func ExportJSON(ctx context.Context, e Exporter, w io.Writer) (int64, error) {
	doc, err := e.Export(ctx)
	if err != nil {
		return 0, fmt.Errorf("export rules: %w", err)
	}
	if err := encodeExport(w, doc); err != nil {
		return 0, err
	}
	return doc.Rules.VersionID, nil
}

func encodeExport(w io.Writer, doc *model.LegacyExport) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

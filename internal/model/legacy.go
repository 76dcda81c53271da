package model

import (
	"encoding/json"
	"fmt"
)

// LegacyFormatVersion is the document version written by exports.
const LegacyFormatVersion = "1.0"

// LegacyExport is the interchange document used by export and import.
// Images and tags_dict belong to the image library; they are written empty
// and ignored on import.
type LegacyExport struct {
	ExportTime float64     `json:"export_time"`
	Version    string      `json:"version"`
	Images     []any       `json:"images"`
	Rules      LegacyRules `json:"rules"`
	TagsDict   []any       `json:"tags_dict"`
}

// LegacyRules is the rule section of a LegacyExport.
type LegacyRules struct {
	VersionID int64             `json:"version_id"`
	Groups    []LegacyGroup     `json:"groups"`
	Keywords  []LegacyKeyword   `json:"keywords"`
	Hierarchy []LegacyHierarchy `json:"hierarchy"`
}

// LegacyGroup is a group row in the legacy document.
type LegacyGroup struct {
	GroupID   int64      `json:"group_id"`
	GroupName string     `json:"group_name"`
	IsEnabled LegacyBool `json:"is_enabled"`
}

// LegacyKeyword is a keyword row in the legacy document.
type LegacyKeyword struct {
	Keyword   string     `json:"keyword"`
	GroupID   int64      `json:"group_id"`
	IsEnabled LegacyBool `json:"is_enabled"`
}

// UnmarshalJSON treats a missing is_enabled as enabled.
func (g *LegacyGroup) UnmarshalJSON(data []byte) error {
	type plain LegacyGroup
	p := plain{IsEnabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = LegacyGroup(p)
	return nil
}

// UnmarshalJSON treats a missing is_enabled as enabled.
func (k *LegacyKeyword) UnmarshalJSON(data []byte) error {
	type plain LegacyKeyword
	p := plain{IsEnabled: true}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*k = LegacyKeyword(p)
	return nil
}

// LegacyHierarchy is an edge row; ParentID 0 means root.
type LegacyHierarchy struct {
	ParentID int64 `json:"parent_id"`
	ChildID  int64 `json:"child_id"`
}

// LegacyBool accepts 0/1 integers as well as JSON booleans, and writes 0/1.
type LegacyBool bool

// MarshalJSON writes the value as 0 or 1.
func (b LegacyBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts true/false, numbers, and null (treated as enabled).
func (b *LegacyBool) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*b = true
	case bool:
		*b = LegacyBool(v)
	case float64:
		*b = v != 0
	default:
		return fmt.Errorf("invalid boolean value %s", string(data))
	}
	return nil
}

// ImportSummary reports what an import loaded.
type ImportSummary struct {
	Groups          int   `json:"groups"`
	Keywords        int   `json:"keywords"`
	Edges           int   `json:"edges"`
	SkippedKeywords int   `json:"skipped_keywords"`
	SkippedEdges    int   `json:"skipped_edges"`
	Version         int64 `json:"version"`
}

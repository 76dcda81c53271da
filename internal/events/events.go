// Package events publishes rule change notifications so editors and search
// nodes learn about new versions without polling.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/model"
)

// TopicPrefix is the subject prefix of every rule event. Subscribe to
// TopicAll for all of them.
const (
	TopicPrefix = "tagrules."
	TopicAll    = "tagrules.>"
)

// Event topic constants
const (
	TopicGroupCreated   = "tagrules.group.created"
	TopicGroupUpdated   = "tagrules.group.updated"
	TopicGroupMoved     = "tagrules.group.moved"
	TopicGroupDeleted   = "tagrules.group.deleted"
	TopicEdgeAdded      = "tagrules.edge.added"
	TopicEdgeRemoved    = "tagrules.edge.removed"
	TopicKeywordAdded   = "tagrules.keyword.added"
	TopicKeywordRemoved = "tagrules.keyword.removed"
	TopicKeywordUpdated = "tagrules.keyword.updated"
	TopicBatchApplied   = "tagrules.batch.applied"
	TopicRulesImported  = "tagrules.rules.imported"
)

var operationTopics = map[string]string{
	model.OpCreateGroup:       TopicGroupCreated,
	model.OpRenameGroup:       TopicGroupUpdated,
	model.OpUpdateGroup:       TopicGroupUpdated,
	model.OpSetGroupEnabled:   TopicGroupUpdated,
	model.OpRelocateGroup:     TopicGroupMoved,
	model.OpDeleteGroup:       TopicGroupDeleted,
	model.OpLinkGroup:         TopicEdgeAdded,
	model.OpUnlinkGroup:       TopicEdgeRemoved,
	model.OpAddKeyword:        TopicKeywordAdded,
	model.OpRemoveKeyword:     TopicKeywordRemoved,
	model.OpSetKeywordEnabled: TopicKeywordUpdated,
	model.OpBatch:             TopicBatchApplied,
	model.OpImport:            TopicRulesImported,
}

// TopicFor maps a version log operation to its topic. Unknown operations
// fall back to TopicPrefix + operation.
func TopicFor(operation string) string {
	if t, ok := operationTopics[operation]; ok {
		return t
	}
	return TopicPrefix + operation
}

// RulesChanged is the payload of every rule event. Origin names the
// server instance that applied the change.
type RulesChanged struct {
	Origin    string    `json:"origin,omitempty"`
	Version   int64     `json:"version"`
	ClientID  string    `json:"client_id"`
	Operation string    `json:"operation"`
	GroupIDs  []int64   `json:"group_ids,omitempty"`
	KeywordID int64     `json:"keyword_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

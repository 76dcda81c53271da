package events

import "context"

// NoopPublisher drops every rule event. A single node without
// TAGRULES_NATS_URL uses it; its SSE clients are still fed locally.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (*NoopPublisher) Close() error { return nil }

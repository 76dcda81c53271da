package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/events"
	"github.com/alfredjeanlab/tagrules/internal/expand"
	"github.com/alfredjeanlab/tagrules/internal/ledger"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/presence"
	"github.com/alfredjeanlab/tagrules/internal/ruletree"
)

// RulesServer serves the rule tree over HTTP and gRPC.
type RulesServer struct {
	rules     *ruletree.Service
	expander  *expand.Expander
	publisher events.Publisher
	sseHub    *sseHub
	origin    string
	Presence  *presence.Tracker
}

// NewRulesServer returns a RulesServer over rules and expander. origin
// identifies this instance in published events so it can ignore its own
// changes when they come back from the bus.
func NewRulesServer(rules *ruletree.Service, expander *expand.Expander, p events.Publisher, origin string) *RulesServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	return &RulesServer{
		rules:     rules,
		expander:  expander,
		publisher: p,
		sseHub:    newSSEHub(),
		origin:    origin,
		Presence:  presence.New(),
	}
}

// change describes an applied mutation for recordAndPublish.
type change struct {
	req       ruletree.Request
	operation string
	version   int64
	groupIDs  []int64
	keywordID int64
	details   string
}

// recordAndPublish notes the editor in the presence tracker and publishes the
// change to NATS and SSE clients. Mutations that left the version unchanged
// are not announced. Both sinks are best-effort; failures are logged.
func (s *RulesServer) recordAndPublish(ctx context.Context, c change) {
	if c.operation != model.OpImport && c.version == c.req.BaseVersion {
		return
	}
	ev := events.RulesChanged{
		Origin:    s.origin,
		Version:   c.version,
		ClientID:  c.req.ClientID,
		Operation: c.operation,
		GroupIDs:  c.groupIDs,
		KeywordID: c.keywordID,
		Details:   c.details,
		At:        time.Now().UTC(),
	}
	s.notePresence(ev)

	topic := events.TopicFor(c.operation)
	if err := s.publisher.Publish(ctx, topic, ev); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "version", c.version, "error", err)
	}
	s.broadcastEvent(topic, ev)
}

func (s *RulesServer) notePresence(ev events.RulesChanged) {
	if s.Presence == nil {
		return
	}
	s.Presence.Record(presence.Activity{ClientID: ev.ClientID, Operation: ev.Operation, Version: ev.Version})
}

// Follow relays rule changes applied by other instances to this instance's
// SSE clients and presence roster until ctx is cancelled. An import seen on
// the bus drops the expander's index, since it may have kept the version
// number.
func (s *RulesServer) Follow(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				s.relay(data)
			}
		}
	}()
	return nil
}

func (s *RulesServer) relay(data []byte) {
	var ev events.RulesChanged
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("dropping malformed rule event", "error", err)
		return
	}
	if ev.Origin == s.origin {
		return
	}
	s.notePresence(ev)
	s.sseHub.broadcast(events.TopicFor(ev.Operation), data)
}

// inputError indicates invalid request input caught at the transport.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// isBadRequest reports whether err is the caller's fault.
func isBadRequest(err error) bool {
	var ie inputError
	return errors.As(err, &ie) ||
		errors.Is(err, model.ErrInvalidInput) ||
		errors.Is(err, model.ErrCycle) ||
		errors.Is(err, model.ErrInvalidReference)
}

// isConflict reports whether err is a stale base version.
func isConflict(err error) bool {
	return errors.Is(err, ledger.ErrConflict)
}

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// sseRingBufferSize is the number of recent rule events kept for
	// Last-Event-ID replay.
	sseRingBufferSize = 1000

	sseKeepaliveInterval = 15 * time.Second

	// sseHelloTopic is the first event on every stream. Its data carries
	// the current rules version so a client can tell whether its cached
	// tree is already stale before any change arrives.
	sseHelloTopic = "tagrules.hello"
)

type sseEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// replayRing keeps the most recent events for Last-Event-ID replay,
// overwriting the oldest once full.
type replayRing struct {
	mu     sync.RWMutex
	events [sseRingBufferSize]sseEvent
	next   int
	size   int
}

func (r *replayRing) push(evt sseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = evt
	r.next = (r.next + 1) % len(r.events)
	r.size = min(r.size+1, len(r.events))
}

// after returns the buffered events with ID > lastID, oldest first.
func (r *replayRing) after(lastID uint64) []*sseEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	oldest := (r.next - r.size + len(r.events)) % len(r.events)
	var out []*sseEvent
	for i := 0; i < r.size; i++ {
		evt := r.events[(oldest+i)%len(r.events)]
		if evt.ID > lastID {
			out = append(out, &evt)
		}
	}
	return out
}

// sseHub fans rule change events out to connected editors.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
	nextID  atomic.Uint64
	replay  replayRing
}

type sseClient struct {
	topics []string // empty matches everything
	ch     chan *sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic string, payload []byte) {
	evt := &sseEvent{ID: h.nextID.Add(1), Topic: topic, Data: payload}
	h.replay.push(*evt)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matchesTopic(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// Slow editor; it can recover with Last-Event-ID or a tree refetch.
		}
	}
}

func (h *sseHub) subscribe(topics []string) *sseClient {
	c := &sseClient{topics: topics, ch: make(chan *sseEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *sseHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	return h.replay.after(lastID)
}

// matchesTopic reports whether topic passes the client's filters, for
// example "tagrules.group.*" matches "tagrules.group.created".
func (c *sseClient) matchesTopic(topic string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic NATS-style: "*" is one
// segment and a trailing ">" is one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")
	for i, pp := range patParts {
		if pp == ">" {
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}
	return len(patParts) == len(topParts)
}

// handleEventStream handles GET /v1/events/stream?topics=.
func (s *RulesServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	client := s.sseHub.subscribe(parseTopics(r.URL.Query().Get("topics")))
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if v, err := s.rules.Version(r.Context()); err == nil {
		hello, _ := json.Marshal(map[string]int64{"version": v})
		fmt.Fprintf(w, "event:%s\ndata:%s\n\n", sseHelloTopic, hello)
	} else {
		slog.Warn("sse: could not read rules version", "error", err)
	}
	flusher.Flush()

	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		for _, evt := range s.sseHub.eventsSince(lastID) {
			if client.matchesTopic(evt.Topic) {
				writeSSEEvent(w, evt)
			}
		}
		flusher.Flush()
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// parseTopics splits a comma separated ?topics= filter.
func parseTopics(q string) []string {
	var topics []string
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

// broadcastEvent fans a locally applied change out to SSE clients.
func (s *RulesServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}

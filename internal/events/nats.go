package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Headers set on rule events so consumers can filter without decoding.
const (
	HeaderVersion = "Tagrules-Version"
	HeaderOrigin  = "Tagrules-Origin"
)

// NATSPublisher publishes rule events as JSON on NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the server at url (TAGRULES_NATS_URL).
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("tagrules-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event on topic. A RulesChanged event also carries its
// version and origin as message headers.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	if rc, ok := event.(RulesChanged); ok {
		msg.Header.Set(HeaderVersion, strconv.FormatInt(rc.Version, 10))
		if rc.Origin != "" {
			msg.Header.Set(HeaderOrigin, rc.Origin)
		}
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives rule events from NATS. It reconnects forever, so a
// follower survives broker restarts.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url. opts are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.Name("tagrules-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// forwarder copies message payloads into a bounded channel until stopped.
// A full channel drops the message rather than stalling the NATS reader.
type forwarder struct {
	mu      sync.Mutex
	ch      chan []byte
	sub     *nats.Subscription
	stopped bool
	dropped int
}

func (f *forwarder) deliver(msg *nats.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.ch <- msg.Data:
	default:
		f.dropped++
	}
}

// stop unsubscribes, discards undelivered payloads and closes the channel.
// It is safe to call more than once.
func (f *forwarder) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	for len(f.ch) > 0 {
		<-f.ch
	}
	close(f.ch)
	if f.dropped > 0 {
		slog.Warn("rule events dropped by slow consumer", "dropped", f.dropped)
	}
}

// Subscribe returns a channel of raw payloads for topic, which may be a
// wildcard such as TopicAll, and a cancel func that closes it.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	f := &forwarder{ch: make(chan []byte, 64)}

	sub, err := s.conn.Subscribe(topic, f.deliver)
	if err != nil {
		f.stop()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	f.mu.Lock()
	f.sub = sub
	f.mu.Unlock()

	// The subscription must reach the server before we return, or events
	// published right after on another connection are missed.
	if err := s.conn.Flush(); err != nil {
		f.stop()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}
	return f.ch, f.stop, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

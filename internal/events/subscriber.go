package events

// Subscriber is how a follower node hears about rule edits committed by its
// peers. Payloads are JSON encoded RulesChanged events; the server decodes
// them itself so a malformed message only costs that one event.
type Subscriber interface {
	// Subscribe delivers raw payloads published on topic, which may be
	// TopicAll. The returned func unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

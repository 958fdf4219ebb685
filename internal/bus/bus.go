// Package bus fans Connection Manager notifications out to consumers that run
// on their own goroutines.
package bus

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/cskr/pubsub"
)

// Topics published by Bridge.
const (
	TopicStatus  = "status"
	TopicMessage = "message"
)

// KindTopic returns the topic carrying messages of one kind.
func KindTopic(kind string) string {
	return "kind:" + kind
}

// Subscription receives published values.
type Subscription chan any

// MessageBus is a topic-based publish/subscribe bus.
type MessageBus interface {
	Publish(topic string, msg any)
	Subscribe(topics ...string) Subscription
	Unsubscribe(ch Subscription, topics ...string)
	Close()
}

// PubSubBus implements MessageBus on cskr/pubsub.
//
// Publish never blocks: a value is dropped for any subscriber whose channel
// is full, so a slow consumer cannot stall the socket. Publishing after Close
// is a no-op.
type PubSubBus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// DefaultCapacity is the per-subscriber channel capacity.
const DefaultCapacity = 128

// New creates a bus with the given per-subscriber capacity.
func New(capacity int, logger *slog.Logger) *PubSubBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PubSubBus{
		ps:     pubsub.New(capacity),
		logger: logger.With("component", "bus"),
	}
}

func (b *PubSubBus) Publish(topic string, msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(msg))
	b.ps.TryPub(msg, topic)
}

func (b *PubSubBus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug("subscribe", "topics", topics)
	return ch
}

func (b *PubSubBus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

// Close shuts the bus down and closes every subscription channel.
func (b *PubSubBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

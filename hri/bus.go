package hri

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryBus is an in-process UpdateSource. Publish calls handlers
// synchronously on the publisher's goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[uuid.UUID]func(payload []byte)
	closed bool
}

// NewMemoryBus creates empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[uuid.UUID]func(payload []byte)),
	}
}

type busSubscription struct {
	bus   *MemoryBus
	topic string
	id    uuid.UUID
	once  sync.Once
}

// Unsubscribe removes handler. Idempotent.
func (sub *busSubscription) Unsubscribe() error {
	sub.once.Do(func() {
		sub.bus.mu.Lock()
		defer sub.bus.mu.Unlock()
		handlers := sub.bus.topics[sub.topic]
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(sub.bus.topics, sub.topic)
		}
	})
	return nil
}

// Subscribe implements UpdateSource
func (bus *MemoryBus) Subscribe(topic string, handler func(payload []byte)) (Subscription, error) {
	if topic == "" {
		return nil, errors.New("empty topic")
	}
	if handler == nil {
		return nil, errors.Errorf("nil handler for topic %s", topic)
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.closed {
		return nil, errors.Wrapf(ErrDestroyed, "bus is closed, can't subscribe to %s", topic)
	}
	handlers, ok := bus.topics[topic]
	if !ok {
		handlers = make(map[uuid.UUID]func(payload []byte))
		bus.topics[topic] = handlers
	}
	id := uuid.New()
	handlers[id] = handler
	return &busSubscription{
		bus:   bus,
		topic: topic,
		id:    id,
	}, nil
}

// Publish delivers payload to every handler of topic and returns number of handlers called
func (bus *MemoryBus) Publish(topic string, payload []byte) int {
	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return 0
	}
	handlers := make([]func(payload []byte), 0, len(bus.topics[topic]))
	for _, handler := range bus.topics[topic] {
		handlers = append(handlers, handler)
	}
	bus.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
	return len(handlers)
}

// PublishMessage encodes message and publishes it
func (bus *MemoryBus) PublishMessage(topic string, msg any) (int, error) {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return 0, errors.Wrapf(err, "Can't publish to %s", topic)
	}
	return bus.Publish(topic, payload), nil
}

// Subscribers returns number of handlers subscribed to topic
func (bus *MemoryBus) Subscribers(topic string) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.topics[topic])
}

// Close drops every subscription. Further subscribes fail and publishes are no-op.
func (bus *MemoryBus) Close() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.closed = true
	bus.topics = make(map[string]map[uuid.UUID]func(payload []byte))
}

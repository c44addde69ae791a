package events

import (
	"log/slog"
	"sync"
	"time"
)

// Topics published by the engine after successful commits.
const (
	TopicSaleCreated          = "sale-created"
	TopicSaleDeleted          = "sale-deleted"
	TopicSaleUpdated          = "sale-updated"
	TopicInventoryCreated     = "inventory-created"
	TopicInventoryUpdated     = "inventory-updated"
	TopicInventoryDeleted     = "inventory-deleted"
	TopicCustomerCreated      = "customer-created"
	TopicCustomerUpdated      = "customer-updated"
	TopicCustomerDeleted      = "customer-deleted"
	TopicCustomerStatsUpdated = "customer-stats-updated"
)

// Event is a change notification for presentation-layer consumers.
type Event struct {
	Topic    string
	EntityID string
	At       time.Time
	Payload  any
}

// Publisher is the write side of the bus as seen by domain services.
type Publisher interface {
	Publish(evt Event)
}

type subscriber struct {
	topics map[string]struct{}
	ch     chan Event
}

func (s *subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Bus is an in-process fire-and-forget pub/sub bus. Publish never blocks:
// each subscriber owns a buffered queue and events are dropped (and logged)
// when a queue is full. Events for the same entity are enqueued in commit
// order because the engine serialises write transactions.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
	closed bool
	log    *slog.Logger
	now    func() time.Time

	// OnPublish, when set, is invoked once per published event with its
	// topic, regardless of how many subscribers receive it.
	OnPublish func(topic string)

	// OnDrop, when set, is invoked with the topic of every dropped event.
	OnDrop func(topic string)
}

// NewBus constructs the bus. buffer is the per-subscriber queue length.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[*subscriber]struct{}),
		buffer: buffer,
		log:    logger,
		now:    time.Now,
	}
}

// Subscribe registers a listener for the given topics (all topics when none
// are named). The returned cancel func detaches the listener and closes its
// channel.
func (b *Bus) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, b.buffer)}
	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish fans evt out to matching subscribers. Delivery failures never
// propagate to the committing caller.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	if b.OnPublish != nil {
		b.OnPublish(evt.Topic)
	}
	for sub := range b.subs {
		if !sub.wants(evt.Topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.log.Warn("event dropped, subscriber queue full",
				slog.String("topic", evt.Topic),
				slog.String("entity_id", evt.EntityID))
			if b.OnDrop != nil {
				b.OnDrop(evt.Topic)
			}
		}
	}
}

// Close detaches all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*subscriber]struct{})
}

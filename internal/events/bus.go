// internal/events/bus.go
package events

import (
	"sync"

	"go.uber.org/zap"

	"escpos-service/internal/model"
)

// Publisher accepts events for distribution
type Publisher interface {
	Publish(event model.Event)
}

// Subscription receives the events it asked for until it is cancelled
type Subscription struct {
	C     <-chan model.Event
	ch    chan model.Event
	types map[model.EventType]bool
}

func (s *Subscription) wants(t model.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// EventBus fans events out to subscribers. Slow subscribers miss events
// rather than stall the publisher.
type EventBus struct {
	subscribers map[*Subscription]struct{}
	events      chan model.Event
	done        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[*Subscription]struct{}),
		events:      make(chan model.Event, 1000),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			eb.closeSubscribers()
			return
		}
	}
}

// Stop stops distribution and closes every subscription channel
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() { close(eb.done) })
}

// Publish queues an event without blocking
func (eb *EventBus) Publish(event model.Event) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to the given event types, or to every event when
// none are given
func (eb *EventBus) Subscribe(types ...model.EventType) *Subscription {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	ch := make(chan model.Event, 100)
	sub := &Subscription{C: ch, ch: ch, types: make(map[model.EventType]bool, len(types))}
	for _, t := range types {
		sub.types[t] = true
	}
	eb.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe cancels a subscription and closes its channel
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if _, ok := eb.subscribers[sub]; ok {
		delete(eb.subscribers, sub)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of active subscriptions
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for sub := range eb.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

func (eb *EventBus) closeSubscribers() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for sub := range eb.subscribers {
		close(sub.ch)
		delete(eb.subscribers, sub)
	}
}

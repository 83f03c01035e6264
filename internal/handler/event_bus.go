// internal/handler/event_bus.go
package handler

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"focuser-service/internal/model"
)

// EventBus fans focuser events out to subscribers. Publish never blocks; a
// full queue or a slow subscriber drops the event.
type EventBus struct {
	subscribers map[chan model.FocuserEvent][]model.EventType
	events      chan model.FocuserEvent
	closed      bool
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[chan model.FocuserEvent][]model.EventType),
		events:      make(chan model.FocuserEvent, 1000),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for event := range eb.events {
		eb.distributeEvent(event)
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	for sub := range eb.subscribers {
		close(sub)
		delete(eb.subscribers, sub)
	}
}

// Stop closes the queue; Start returns once it is drained
func (eb *EventBus) Stop() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if !eb.closed {
		eb.closed = true
		close(eb.events)
	}
}

// Publish implements service.EventPublisher
func (eb *EventBus) Publish(event model.FocuserEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe returns a channel receiving events of the given types, or of every
// type when none are given, and a function that cancels the subscription.
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) (<-chan model.FocuserEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.FocuserEvent, 100)
	if eb.closed {
		close(subscriber)
		return subscriber, func() {}
	}
	eb.subscribers[subscriber] = eventTypes

	var once sync.Once
	return subscriber, func() {
		once.Do(func() {
			eb.mutex.Lock()
			defer eb.mutex.Unlock()
			if _, ok := eb.subscribers[subscriber]; ok {
				delete(eb.subscribers, subscriber)
				close(subscriber)
			}
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.FocuserEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for subscriber, types := range eb.subscribers {
		if len(types) > 0 && !slices.Contains(types, event.EventType) {
			continue
		}
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

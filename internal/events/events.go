package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types the engine emits. The presentation layer treats every one
// of them as "job state changed, refetch".
const (
	EventJobUpdated     = "job_updated"
	EventBookingSuccess = "booking_success"
	EventBookingFailed  = "booking_failed"
	EventActionRequired = "action_required"
)

// JobEventPayload is the minimal job snapshot shipped with an event.
type JobEventPayload struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event. Delivery is fire-and-forget; handler
// errors are discarded.
type EventHandler func(event *Event) error

// EventBus is in-process pub/sub connecting the engine to its consumers.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for an event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handlers run
// synchronously; the caller decides the concurrency model.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"appointo/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Booking event types. They double as AMQP routing keys.
const (
	BookingCreated     = "booking.created"
	BookingRescheduled = "booking.rescheduled"
	BookingCanceled    = "booking.canceled"
	BookingReminder    = "booking.reminder"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingPayload describes a booking change with display names resolved.
type BookingPayload struct {
	Booking      model.Booking  `json:"booking"`
	Previous     *model.Booking `json:"previous,omitempty"`
	ServiceName  string         `json:"service_name"`
	OfferName    string         `json:"offer_name"`
	EmployeeName string         `json:"employee_name"`
	Timezone     string         `json:"timezone"`
}

// NewBookingEvent encodes p as the payload of an event of the given type.
func NewBookingEvent(eventType string, p BookingPayload) (Event, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{ID: uuid.NewString(), Type: eventType, Payload: data, CreatedAt: time.Now()}, nil
}

// DecodeBooking reads a BookingPayload back from e.
func DecodeBooking(e Event) (BookingPayload, error) {
	var p BookingPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return BookingPayload{}, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return p, nil
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]namedHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

type namedHandler struct {
	name    string
	handler EventHandler
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]namedHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(name string, handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], namedHandler{name: name, handler: handler})
	}
}

// Publish runs subscribers of the event type in registration order.
// Handler failures are logged and do not stop later handlers.
func (b *EventBus) Publish(ctx context.Context, event Event) int {
	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, h := range handlers {
		if err := h.handler(ctx, event); err != nil {
			failed++
			b.logger.Error().Err(err).
				Str("handler", h.name).
				Str("event", event.Type).
				Str("event_id", event.ID).
				Msg("event handler failed")
		}
	}
	return failed
}

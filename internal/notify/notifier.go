// Package notify turns booking events into in-app notifications, Telegram messages
// and reminders.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appointo/internal/events"
	"appointo/internal/metrics"
	"appointo/internal/model"

	"github.com/rs/zerolog"
)

// ErrTelegram marks a failed chat delivery after the notification was stored.
var ErrTelegram = errors.New("telegram delivery failed")

// Store persists notifications and resolves catalog names.
type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetService(ctx context.Context, id int64) (*model.Service, error)
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	GetEmployee(ctx context.Context, id int64) (*model.Employee, error)
}

// Messenger delivers text to a chat.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Notifier stores a notification for the booking user and messages the employee chat.
type Notifier struct {
	store     Store
	messenger Messenger
	logger    zerolog.Logger
}

// NewNotifier creates a notifier. messenger may be nil.
func NewNotifier(store Store, messenger Messenger, logger zerolog.Logger) *Notifier {
	return &Notifier{
		store:     store,
		messenger: messenger,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier for booking changes. Reminders are delivered by
// the reminder loop directly.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe("notifications", n.Handle,
		events.BookingCreated, events.BookingRescheduled, events.BookingCanceled)
}

// Handle is an events.EventHandler.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	kind, ok := kindFor(event.Type)
	if !ok {
		return nil
	}
	p, err := events.DecodeBooking(event)
	if err != nil {
		return err
	}
	return n.Deliver(ctx, kind, p)
}

// Deliver stores a notification of kind and, when the employee has a chat, sends it there.
// A chat failure is reported as ErrTelegram; the notification is kept.
func (n *Notifier) Deliver(ctx context.Context, kind string, p events.BookingPayload) error {
	text := Message(kind, p)
	note := &model.Notification{
		UserID:    p.Booking.UserID,
		BookingID: p.Booking.ID,
		Kind:      kind,
		Message:   text,
	}
	if err := n.store.CreateNotification(ctx, note); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	if n.messenger == nil {
		return nil
	}
	emp, err := n.store.GetEmployee(ctx, p.Booking.EmployeeID)
	if err != nil || emp.TelegramChatID == 0 {
		return nil
	}
	if err := n.messenger.Send(ctx, emp.TelegramChatID, text); err != nil {
		metrics.IncSinkFailure("telegram")
		n.logger.Warn().Err(err).Int64("booking_id", p.Booking.ID).Int64("employee_id", emp.ID).Msg("telegram delivery")
		return fmt.Errorf("%w: %w", ErrTelegram, err)
	}
	return nil
}

func kindFor(eventType string) (string, bool) {
	switch eventType {
	case events.BookingCreated:
		return model.NotificationBookingCreated, true
	case events.BookingRescheduled:
		return model.NotificationBookingRescheduled, true
	case events.BookingCanceled:
		return model.NotificationBookingCanceled, true
	case events.BookingReminder:
		return model.NotificationReminder, true
	}
	return "", false
}

// Message renders the text of a notification.
func Message(kind string, p events.BookingPayload) string {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		loc = time.UTC
	}
	what := p.OfferName
	if p.EmployeeName != "" {
		what += " with " + p.EmployeeName
	}
	at := func(b model.Booking) string {
		t := b.StartTime.In(loc)
		return t.Format("02.01.2006") + " at " + t.Format("15:04")
	}

	switch kind {
	case model.NotificationBookingCreated:
		return fmt.Sprintf("Booking confirmed: %s on %s.", what, at(p.Booking))
	case model.NotificationBookingRescheduled:
		if p.Previous != nil {
			return fmt.Sprintf("Booking moved: %s from %s to %s.", what, at(*p.Previous), at(p.Booking))
		}
		return fmt.Sprintf("Booking moved: %s on %s.", what, at(p.Booking))
	case model.NotificationBookingCanceled:
		return fmt.Sprintf("Booking canceled: %s on %s.", what, at(p.Booking))
	case model.NotificationReminder:
		return fmt.Sprintf("Reminder: %s on %s.", what, at(p.Booking))
	default:
		return fmt.Sprintf("Booking %s: %s on %s.", kind, what, at(p.Booking))
	}
}

// describe resolves display names for b, best effort.
func describe(ctx context.Context, store Store, b model.Booking) events.BookingPayload {
	p := events.BookingPayload{Booking: b, Timezone: "UTC"}
	if svc, err := store.GetService(ctx, b.ServiceID); err == nil {
		p.ServiceName = svc.Name
		if svc.Timezone != "" {
			p.Timezone = svc.Timezone
		}
	}
	if offer, err := store.GetOffer(ctx, b.OfferID); err == nil {
		p.OfferName = offer.Name
	}
	if emp, err := store.GetEmployee(ctx, b.EmployeeID); err == nil {
		p.EmployeeName = emp.Name
	}
	return p
}

package notify

import (
	"context"
	"errors"
	"time"

	"appointo/internal/events"
	"appointo/internal/metrics"
	"appointo/internal/model"

	"github.com/rs/zerolog"
)

// ReminderStore finds bookings due for a reminder.
type ReminderStore interface {
	Store
	ListDueReminders(ctx context.Context, from, until time.Time) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, id int64) error
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

// ReminderConfig controls the reminder loop.
type ReminderConfig struct {
	HoursBefore int
	Interval    time.Duration
}

// Reminders notifies users about bookings starting within HoursBefore.
type Reminders struct {
	store     ReminderStore
	notifier  *Notifier
	publisher Publisher
	cfg       ReminderConfig
	now       func() time.Time
	logger    zerolog.Logger
}

// NewReminders creates the loop. publisher may be nil.
func NewReminders(store ReminderStore, notifier *Notifier, publisher Publisher, cfg ReminderConfig, logger zerolog.Logger) *Reminders {
	if cfg.HoursBefore <= 0 {
		cfg.HoursBefore = 24
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Reminders{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "reminders").Logger(),
	}
}

// Start checks immediately and then every Interval until ctx is done.
func (r *Reminders) Start(ctx context.Context) {
	go func() {
		r.RunOnce(ctx)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
	r.logger.Info().
		Int("hours_before", r.cfg.HoursBefore).
		Dur("interval", r.cfg.Interval).
		Msg("reminders started")
}

// RunOnce delivers every due reminder and returns how many bookings were marked.
// A booking whose notification could not be stored is retried on the next run.
func (r *Reminders) RunOnce(ctx context.Context) int {
	now := r.now()
	due, err := r.store.ListDueReminders(ctx, now, now.Add(time.Duration(r.cfg.HoursBefore)*time.Hour))
	if err != nil {
		r.logger.Error().Err(err).Msg("list due reminders")
		return 0
	}

	marked := 0
	for _, b := range due {
		p := describe(ctx, r.store, b)

		status := "sent"
		if err := r.notifier.Deliver(ctx, model.NotificationReminder, p); err != nil {
			if !errors.Is(err, ErrTelegram) {
				metrics.IncReminder("failed")
				r.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("deliver reminder")
				continue
			}
			status = "telegram_failed"
		}

		if err := r.store.MarkReminderSent(ctx, b.ID); err != nil {
			r.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("mark reminder sent")
			continue
		}
		metrics.IncReminder(status)
		marked++

		r.publish(ctx, p)
	}

	if marked > 0 {
		r.logger.Info().Int("count", marked).Msg("reminders sent")
	}
	return marked
}

func (r *Reminders) publish(ctx context.Context, p events.BookingPayload) {
	if r.publisher == nil {
		return
	}
	event, err := events.NewBookingEvent(events.BookingReminder, p)
	if err != nil {
		r.logger.Error().Err(err).Msg("build reminder event")
		return
	}
	r.publisher.Publish(ctx, event)
}

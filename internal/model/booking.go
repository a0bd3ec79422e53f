package model

import "time"

// Booking statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

// Booking is a reserved [StartTime, EndTime) interval of an employee.
type Booking struct {
	ID           int64     `json:"id"`
	Reference    string    `json:"reference"`
	ServiceID    int64     `json:"service_id"`
	OfferID      int64     `json:"offer_id"`
	EmployeeID   int64     `json:"employee_id"`
	UserID       int64     `json:"user_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Duration returns the length of the booking.
func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// IsActive reports whether the booking still blocks its interval.
func (b *Booking) IsActive() bool {
	return b.Status != StatusCanceled
}

// OverlapsWith uses half-open [start, end) semantics.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Interval().Overlaps(other.Interval())
}

// ContainsTime reports whether t falls in [StartTime, EndTime).
func (b *Booking) ContainsTime(t time.Time) bool {
	return !t.Before(b.StartTime) && t.Before(b.EndTime)
}

// Interval returns the booking as a half-open interval.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// Opinion is a customer review of a service.
type Opinion struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	UserID    int64     `json:"user_id"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification kinds.
const (
	NotificationBookingCreated     = "booking_created"
	NotificationBookingRescheduled = "booking_rescheduled"
	NotificationBookingCanceled    = "booking_canceled"
	NotificationReminder           = "reminder"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	BookingID int64     `json:"booking_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

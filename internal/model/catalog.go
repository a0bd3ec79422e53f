package model

import (
	"fmt"
	"time"
)

// Service is a bookable business unit with its own opening hours and time zone.
type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timezone    string    `json:"timezone"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location resolves the service time zone, falling back to UTC for an empty name.
func (s *Service) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("service %d timezone %q: %w", s.ID, s.Timezone, err)
	}
	return loc, nil
}

// Employee delivers the offers of one service.
type Employee struct {
	ID             int64     `json:"id"`
	ServiceID      int64     `json:"service_id"`
	Name           string    `json:"name"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Offer is a purchasable variant of a service with a fixed duration.
type Offer struct {
	ID              int64     `json:"id"`
	ServiceID       int64     `json:"service_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the offer length as a time.Duration.
func (o *Offer) Duration() time.Duration {
	return time.Duration(o.DurationMinutes) * time.Minute
}

// FormatPrice renders the price as "12.50 EUR".
func (o *Offer) FormatPrice() string {
	return fmt.Sprintf("%d.%02d %s", o.PriceCents/100, o.PriceCents%100, o.Currency)
}

// OpeningHours is the weekly availability window of a service for one weekday.
type OpeningHours struct {
	ID         int64  `json:"id"`
	ServiceID  int64  `json:"service_id"`
	DayOfWeek  int    `json:"day_of_week"` // 1=Mon .. 7=Sun
	OpenTime   string `json:"open_time"`   // "09:00"
	CloseTime  string `json:"close_time"`  // "17:00"
	BreakStart string `json:"break_start,omitempty"`
	BreakEnd   string `json:"break_end,omitempty"`
	Closed     bool   `json:"closed"`
}

// ScheduleOverride replaces the weekly hours of a service on one date.
type ScheduleOverride struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	Date      time.Time `json:"date"`
	Closed    bool      `json:"closed"`
	OpenTime  string    `json:"open_time,omitempty"`
	CloseTime string    `json:"close_time,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// ISOWeekday converts time.Weekday to 1=Mon .. 7=Sun.
func ISOWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

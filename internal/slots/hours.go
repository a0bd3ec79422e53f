package slots

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"appointo/internal/model"
)

// Window is the opening window of a service on one local date.
type Window struct {
	Open       time.Time
	Close      time.Time
	BreakStart time.Time
	BreakEnd   time.Time
	Closed     bool
	Reason     string
}

// HasBreak reports whether the window carries a break.
func (w Window) HasBreak() bool {
	return !w.BreakStart.IsZero() && w.BreakEnd.After(w.BreakStart)
}

// HoursStore reads weekly hours and date overrides. Both lookups return (nil, nil) when unset.
type HoursStore interface {
	GetScheduleOverride(ctx context.Context, serviceID int64, date time.Time) (*model.ScheduleOverride, error)
	GetOpeningHours(ctx context.Context, serviceID int64, dayOfWeek int) (*model.OpeningHours, error)
}

// WindowProvider resolves opening windows.
type WindowProvider interface {
	Window(ctx context.Context, service *model.Service, date time.Time) (Window, error)
}

// HoursProvider resolves the opening window of a service for a date.
// Overrides (day off, special hours, holidays) win over the weekly row.
type HoursProvider struct {
	store HoursStore
}

// NewHoursProvider creates a provider backed by store.
func NewHoursProvider(store HoursStore) *HoursProvider {
	return &HoursProvider{store: store}
}

// Window returns the window for the calendar date of date in the service location.
// Missing configuration yields a closed window, not an error.
func (p *HoursProvider) Window(ctx context.Context, service *model.Service, date time.Time) (Window, error) {
	loc, err := service.Location()
	if err != nil {
		return Window{}, err
	}
	day := localMidnight(date, loc)

	override, err := p.store.GetScheduleOverride(ctx, service.ID, day)
	if err != nil {
		return Window{}, fmt.Errorf("get override: %w", err)
	}
	if override != nil {
		if override.Closed {
			return Window{Closed: true, Reason: override.Reason}, nil
		}
		if override.OpenTime != "" && override.CloseTime != "" {
			w, err := buildWindow(day, override.OpenTime, override.CloseTime, "", "")
			if err != nil {
				return Window{}, fmt.Errorf("override for %s: %w", day.Format("2006-01-02"), err)
			}
			w.Reason = override.Reason
			return w, nil
		}
	}

	hours, err := p.store.GetOpeningHours(ctx, service.ID, model.ISOWeekday(day.Weekday()))
	if err != nil {
		return Window{}, fmt.Errorf("get opening hours: %w", err)
	}
	if hours == nil || hours.Closed {
		return Window{Closed: true}, nil
	}

	w, err := buildWindow(day, hours.OpenTime, hours.CloseTime, hours.BreakStart, hours.BreakEnd)
	if err != nil {
		return Window{}, fmt.Errorf("opening hours for day %d: %w", hours.DayOfWeek, err)
	}
	return w, nil
}

func buildWindow(day time.Time, open, closeAt, breakStart, breakEnd string) (Window, error) {
	var w Window
	var err error

	if w.Open, err = parseTimeOnDate(day, open); err != nil {
		return Window{}, err
	}
	if w.Close, err = parseTimeOnDate(day, closeAt); err != nil {
		return Window{}, err
	}
	if !w.Close.After(w.Open) {
		return Window{Closed: true}, nil
	}

	if breakStart != "" && breakEnd != "" {
		if w.BreakStart, err = parseTimeOnDate(day, breakStart); err != nil {
			return Window{}, err
		}
		if w.BreakEnd, err = parseTimeOnDate(day, breakEnd); err != nil {
			return Window{}, err
		}
	}
	return w, nil
}

// localMidnight returns the start of the calendar day of t in loc.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// parseTimeOnDate places "HH:MM" on the wall clock of date's calendar day.
func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	hour, minute, err := parseClock(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

func parseClock(timeStr string) (int, int, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, 0, fmt.Errorf("invalid hour in %q", timeStr)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || hour == 24 && minute != 0 {
		return 0, 0, fmt.Errorf("invalid minute in %q", timeStr)
	}

	return hour, minute, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"
)

const dateLayout = "2006-01-02"

// GetService returns a service by id, served from the LRU cache when possible.
func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	if s, ok := db.services.Get(id); ok {
		return &s, nil
	}

	var s model.Service
	var description sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, timezone, is_active, created_at, updated_at
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &description, &s.Timezone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("service %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	s.Description = description.String

	db.services.Add(id, s)
	return &s, nil
}

// ListServices returns active services ordered by id.
func (db *DB) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, timezone, is_active, created_at, updated_at
		FROM services WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &description, &s.Timezone, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Description = description.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOffer returns an offer by id.
func (db *DB) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	if o, ok := db.offers.Get(id); ok {
		return &o, nil
	}

	var o model.Offer
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, name, duration_minutes, price_cents, currency, is_active, created_at, updated_at
		FROM offers WHERE id = ?`, id,
	).Scan(&o.ID, &o.ServiceID, &o.Name, &o.DurationMinutes, &o.PriceCents, &o.Currency, &o.IsActive, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("offer %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %d: %w", id, err)
	}

	db.offers.Add(id, o)
	return &o, nil
}

// ListOffers returns active offers of a service.
func (db *DB) ListOffers(ctx context.Context, serviceID int64) ([]model.Offer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, name, duration_minutes, price_cents, currency, is_active, created_at, updated_at
		FROM offers WHERE service_id = ? AND is_active = 1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []model.Offer
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.ID, &o.ServiceID, &o.Name, &o.DurationMinutes, &o.PriceCents, &o.Currency, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetEmployee returns an employee by id.
func (db *DB) GetEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	if e, ok := db.employees.Get(id); ok {
		return &e, nil
	}

	var e model.Employee
	var chatID sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, name, telegram_chat_id, is_active, created_at, updated_at
		FROM employees WHERE id = ?`, id,
	).Scan(&e.ID, &e.ServiceID, &e.Name, &chatID, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("employee %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee %d: %w", id, err)
	}
	e.TelegramChatID = chatID.Int64

	db.employees.Add(id, e)
	return &e, nil
}

// ListEmployees returns active employees of a service.
func (db *DB) ListEmployees(ctx context.Context, serviceID int64) ([]model.Employee, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, name, telegram_chat_id, is_active, created_at, updated_at
		FROM employees WHERE service_id = ? AND is_active = 1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		var e model.Employee
		var chatID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.Name, &chatID, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.TelegramChatID = chatID.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetOpeningHours returns the weekly row of a service for an ISO weekday.
// It returns (nil, nil) when nothing is configured for that day.
func (db *DB) GetOpeningHours(ctx context.Context, serviceID int64, dayOfWeek int) (*model.OpeningHours, error) {
	var h model.OpeningHours
	var breakStart, breakEnd sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, day_of_week, open_time, close_time, break_start, break_end, is_closed
		FROM opening_hours WHERE service_id = ? AND day_of_week = ?`,
		serviceID, dayOfWeek,
	).Scan(&h.ID, &h.ServiceID, &h.DayOfWeek, &h.OpenTime, &h.CloseTime, &breakStart, &breakEnd, &h.Closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opening hours: %w", err)
	}
	h.BreakStart = breakStart.String
	h.BreakEnd = breakEnd.String
	return &h, nil
}

// ListOpeningHours returns all weekly rows of a service ordered by weekday.
func (db *DB) ListOpeningHours(ctx context.Context, serviceID int64) ([]model.OpeningHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, day_of_week, open_time, close_time, break_start, break_end, is_closed
		FROM opening_hours WHERE service_id = ? ORDER BY day_of_week`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list opening hours: %w", err)
	}
	defer rows.Close()

	var out []model.OpeningHours
	for rows.Next() {
		var h model.OpeningHours
		var breakStart, breakEnd sql.NullString
		if err := rows.Scan(&h.ID, &h.ServiceID, &h.DayOfWeek, &h.OpenTime, &h.CloseTime, &breakStart, &breakEnd, &h.Closed); err != nil {
			return nil, err
		}
		h.BreakStart = breakStart.String
		h.BreakEnd = breakEnd.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertOpeningHours writes the weekly row for h.ServiceID and h.DayOfWeek.
func (db *DB) UpsertOpeningHours(ctx context.Context, h *model.OpeningHours) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO opening_hours (service_id, day_of_week, open_time, close_time, break_start, break_end, is_closed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_id, day_of_week) DO UPDATE SET
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			break_start = excluded.break_start,
			break_end = excluded.break_end,
			is_closed = excluded.is_closed,
			updated_at = excluded.updated_at`,
		h.ServiceID, h.DayOfWeek, h.OpenTime, h.CloseTime,
		nullString(h.BreakStart), nullString(h.BreakEnd), boolToInt(h.Closed), dbTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert opening hours: %w", err)
	}
	return nil
}

// GetScheduleOverride returns the override of a service on a calendar date, or (nil, nil).
func (db *DB) GetScheduleOverride(ctx context.Context, serviceID int64, date time.Time) (*model.ScheduleOverride, error) {
	var o model.ScheduleOverride
	var day string
	var openTime, closeTime, reason sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, date, is_closed, open_time, close_time, reason
		FROM schedule_overrides WHERE service_id = ? AND date = ?`,
		serviceID, date.Format(dateLayout),
	).Scan(&o.ID, &o.ServiceID, &day, &o.Closed, &openTime, &closeTime, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule override: %w", err)
	}

	o.Date, err = time.ParseInLocation(dateLayout, day, date.Location())
	if err != nil {
		return nil, fmt.Errorf("parse override date %q: %w", day, err)
	}
	o.OpenTime = openTime.String
	o.CloseTime = closeTime.String
	o.Reason = reason.String
	return &o, nil
}

// CreateScheduleOverride creates or updates an override for a specific date.
func (db *DB) CreateScheduleOverride(ctx context.Context, o *model.ScheduleOverride) error {
	if o == nil {
		return fmt.Errorf("override is nil")
	}

	now := dbTime(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO schedule_overrides (service_id, date, is_closed, open_time, close_time, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_id, date) DO UPDATE SET
			is_closed = excluded.is_closed,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		o.ServiceID, o.Date.Format(dateLayout), boolToInt(o.Closed),
		nullString(o.OpenTime), nullString(o.CloseTime), nullString(o.Reason), now, now,
	)
	if err != nil {
		return fmt.Errorf("save schedule override: %w", err)
	}
	return nil
}

// DeleteScheduleOverride removes an override for a specific date.
func (db *DB) DeleteScheduleOverride(ctx context.Context, serviceID int64, date time.Time) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM schedule_overrides WHERE service_id = ? AND date = ?",
		serviceID, date.Format(dateLayout),
	)
	return err
}

// SetDayOff marks a specific date as closed.
func (db *DB) SetDayOff(ctx context.Context, serviceID int64, date time.Time, reason string) error {
	return db.CreateScheduleOverride(ctx, &model.ScheduleOverride{
		ServiceID: serviceID,
		Date:      date,
		Closed:    true,
		Reason:    reason,
	})
}

// SetSpecialHours sets special opening hours for a specific date.
func (db *DB) SetSpecialHours(ctx context.Context, serviceID int64, date time.Time, openTime, closeTime, reason string) error {
	return db.CreateScheduleOverride(ctx, &model.ScheduleOverride{
		ServiceID: serviceID,
		Date:      date,
		OpenTime:  openTime,
		CloseTime: closeTime,
		Reason:    reason,
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

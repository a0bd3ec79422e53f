package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"

	"github.com/google/uuid"
)

const bookingColumns = `id, reference, service_id, offer_id, employee_id, user_id,
	start_time, end_time, status, reminder_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.Reference, &b.ServiceID, &b.OfferID, &b.EmployeeID, &b.UserID,
		&b.StartTime, &b.EndTime, &b.Status, &b.ReminderSent, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	return b, nil
}

// ListUserBookings returns bookings of a user, newest first.
func (db *DB) ListUserBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY start_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return out, nil
}

// BookingsOnDay returns active bookings of an employee intersecting [from, to), ordered by start.
// excludeID skips one booking, typically the one being edited; zero excludes nothing.
func (db *DB) BookingsOnDay(ctx context.Context, employeeID int64, from, to time.Time, excludeID int64) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE employee_id = ?
		  AND status != ?
		  AND start_time < ?
		  AND end_time > ?
		  AND id != ?
		ORDER BY start_time ASC`,
		employeeID, model.StatusCanceled, dbTime(to), dbTime(from), excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("bookings on day: %w", err)
	}
	return out, nil
}

// ListBookingsRange returns every booking starting in [from, to), ordered by start.
func (db *DB) ListBookingsRange(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time ASC, id ASC`,
		dbTime(from), dbTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings range: %w", err)
	}
	return out, nil
}

func hasOverlapTx(ctx context.Context, tx *sql.Tx, employeeID int64, start, end time.Time, excludeID int64) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE employee_id = ?
		  AND status != ?
		  AND start_time < ?
		  AND end_time > ?
		  AND id != ?`,
		employeeID, model.StatusCanceled, dbTime(end), dbTime(start), excludeID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBookingTx re-checks that the interval is free and inserts the booking inside one
// transaction. An overlapping active booking yields an apperr Conflict.
func (db *DB) CreateBookingTx(ctx context.Context, b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	if !b.EndTime.After(b.StartTime) {
		return apperr.BadRequest("booking end must be after start")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	busy, err := hasOverlapTx(ctx, tx, b.EmployeeID, b.StartTime, b.EndTime, 0)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if busy {
		return apperr.Conflict("time slot is no longer available")
	}

	now := dbTime(time.Now())
	if b.Reference == "" {
		b.Reference = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.StatusConfirmed
	}
	b.StartTime = dbTime(b.StartTime)
	b.EndTime = dbTime(b.EndTime)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (reference, service_id, offer_id, employee_id, user_id,
			start_time, end_time, status, reminder_sent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		b.Reference, b.ServiceID, b.OfferID, b.EmployeeID, b.UserID,
		b.StartTime, b.EndTime, b.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit booking: %w", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// RescheduleBookingTx moves an active booking to a new interval, offer and employee.
// The booking itself is ignored by the overlap re-check.
func (db *DB) RescheduleBookingTx(ctx context.Context, b *model.Booking) error {
	if b == nil || b.ID == 0 {
		return fmt.Errorf("booking id is required")
	}
	if !b.EndTime.After(b.StartTime) {
		return apperr.BadRequest("booking end must be after start")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, b.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("booking %d not found", b.ID)
	}
	if err != nil {
		return fmt.Errorf("load booking %d: %w", b.ID, err)
	}
	if !current.IsActive() {
		return apperr.BadRequest("booking %d is canceled", b.ID)
	}

	busy, err := hasOverlapTx(ctx, tx, b.EmployeeID, b.StartTime, b.EndTime, b.ID)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if busy {
		return apperr.Conflict("time slot is no longer available")
	}

	now := dbTime(time.Now())
	b.StartTime = dbTime(b.StartTime)
	b.EndTime = dbTime(b.EndTime)

	_, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET service_id = ?, offer_id = ?, employee_id = ?, start_time = ?, end_time = ?,
			reminder_sent = 0, updated_at = ?
		WHERE id = ?`,
		b.ServiceID, b.OfferID, b.EmployeeID, b.StartTime, b.EndTime, now, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule: %w", err)
	}

	b.Reference = current.Reference
	b.UserID = current.UserID
	b.Status = current.Status
	b.ReminderSent = false
	b.CreatedAt = current.CreatedAt
	b.UpdatedAt = now
	return nil
}

// CancelBooking marks a booking canceled and returns its final state.
func (db *DB) CancelBooking(ctx context.Context, id int64) (*model.Booking, error) {
	b, err := db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsActive() {
		return nil, apperr.BadRequest("booking %d is already canceled", id)
	}

	now := dbTime(time.Now())
	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
		model.StatusCanceled, now, id, model.StatusCanceled,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.BadRequest("booking %d is already canceled", id)
	}

	b.Status = model.StatusCanceled
	b.UpdatedAt = now
	return b, nil
}

// ListDueReminders returns confirmed bookings starting in [from, until] without a reminder yet.
func (db *DB) ListDueReminders(ctx context.Context, from, until time.Time) ([]model.Booking, error) {
	out, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = ?
		  AND reminder_sent = 0
		  AND start_time >= ?
		  AND start_time <= ?
		ORDER BY start_time ASC`,
		model.StatusConfirmed, dbTime(from), dbTime(until),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return out, nil
}

// MarkReminderSent flags a booking so the reminder loop skips it.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bookings SET reminder_sent = 1, updated_at = ? WHERE id = ?`, dbTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark reminder sent %d: %w", id, err)
	}
	return nil
}

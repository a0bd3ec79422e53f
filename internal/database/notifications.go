package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"
)

// CreateNotification stores an in-app message for a user.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	now := dbTime(time.Now())
	bookingID := sql.NullInt64{Int64: n.BookingID, Valid: n.BookingID != 0}

	res, err := db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, booking_id, kind, message, is_read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		n.UserID, bookingID, n.Kind, n.Message, now,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id
	n.Read = false
	n.CreatedAt = now
	return nil
}

// ListNotifications returns notifications of a user, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]model.Notification, error) {
	query := `SELECT id, user_id, booking_id, kind, message, is_read, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var bookingID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &bookingID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.BookingID = bookingID.Int64
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (db *DB) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}

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

// CreateOpinion stores a review of a service.
func (db *DB) CreateOpinion(ctx context.Context, o *model.Opinion) error {
	if o.Rating < 1 || o.Rating > 5 {
		return apperr.BadRequest("rating must be between 1 and 5")
	}
	if _, err := db.GetService(ctx, o.ServiceID); err != nil {
		return err
	}

	now := dbTime(time.Now())
	res, err := db.ExecContext(ctx, `
		INSERT INTO opinions (service_id, user_id, rating, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.ServiceID, o.UserID, o.Rating, o.Content, now,
	)
	if err != nil {
		return fmt.Errorf("insert opinion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = id
	o.CreatedAt = now
	return nil
}

// GetOpinion returns an opinion by id.
func (db *DB) GetOpinion(ctx context.Context, id int64) (*model.Opinion, error) {
	var o model.Opinion
	err := db.QueryRowContext(ctx, `
		SELECT id, service_id, user_id, rating, content, created_at FROM opinions WHERE id = ?`, id,
	).Scan(&o.ID, &o.ServiceID, &o.UserID, &o.Rating, &o.Content, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("opinion %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get opinion %d: %w", id, err)
	}
	return &o, nil
}

// ListOpinions returns the opinions of a service, newest first.
func (db *DB) ListOpinions(ctx context.Context, serviceID int64) ([]model.Opinion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, service_id, user_id, rating, content, created_at
		FROM opinions WHERE service_id = ? ORDER BY created_at DESC, id DESC`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list opinions: %w", err)
	}
	defer rows.Close()

	var out []model.Opinion
	for rows.Next() {
		var o model.Opinion
		if err := rows.Scan(&o.ID, &o.ServiceID, &o.UserID, &o.Rating, &o.Content, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOpinion removes an opinion; a missing row is NotFound.
func (db *DB) DeleteOpinion(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM opinions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete opinion %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("opinion %d not found", id)
	}
	return nil
}

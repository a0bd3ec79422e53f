package database

import (
	"context"
	"fmt"
	"time"

	"appointo/internal/config"
	"appointo/internal/model"
)

// SyncCatalogFromConfig applies catalog.yaml to the database.
// It upserts services, offers, employees and weekly hours, deactivates rows that disappeared
// from the file and turns configured holidays into day-off overrides.
func (db *DB) SyncCatalogFromConfig(ctx context.Context, cfg *config.CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("catalog config is nil")
	}
	defer db.PurgeCatalogCache()

	now := dbTime(time.Now())
	seenServices := make(map[int64]struct{})
	seenOffers := make(map[int64]struct{})
	seenEmployees := make(map[int64]struct{})

	for _, svc := range cfg.Services {
		// Preserve created_at if the service already exists.
		_, err := db.ExecContext(ctx, `
			INSERT INTO services (id, name, description, timezone, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM services WHERE id = ?), ?), ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				timezone = excluded.timezone,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			svc.ID, svc.Name, svc.Description, timezoneOrUTC(svc.Timezone), boolToInt(svc.IsActive), svc.ID, now, now,
		)
		if err != nil {
			return fmt.Errorf("sync service %d: %w", svc.ID, err)
		}
		seenServices[int64(svc.ID)] = struct{}{}

		for _, o := range svc.Offers {
			_, err := db.ExecContext(ctx, `
				INSERT INTO offers (id, service_id, name, duration_minutes, price_cents, currency, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					service_id = excluded.service_id,
					name = excluded.name,
					duration_minutes = excluded.duration_minutes,
					price_cents = excluded.price_cents,
					currency = excluded.currency,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
				o.ID, svc.ID, o.Name, o.DurationMinutes, o.PriceCents, o.Currency, boolToInt(activeOrDefault(o.IsActive)), now, now,
			)
			if err != nil {
				return fmt.Errorf("sync offer %d: %w", o.ID, err)
			}
			seenOffers[int64(o.ID)] = struct{}{}
		}

		for _, e := range svc.Employees {
			_, err := db.ExecContext(ctx, `
				INSERT INTO employees (id, service_id, name, telegram_chat_id, is_active, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					service_id = excluded.service_id,
					name = excluded.name,
					telegram_chat_id = excluded.telegram_chat_id,
					is_active = excluded.is_active,
					updated_at = excluded.updated_at`,
				e.ID, svc.ID, e.Name, e.TelegramChatID, boolToInt(activeOrDefault(e.IsActive)), now, now,
			)
			if err != nil {
				return fmt.Errorf("sync employee %d: %w", e.ID, err)
			}
			seenEmployees[int64(e.ID)] = struct{}{}
		}

		if err := db.applyHoursFromConfig(ctx, int64(svc.ID), svc.OpeningHours); err != nil {
			return fmt.Errorf("sync service %d hours: %w", svc.ID, err)
		}
	}

	for table, seen := range map[string]map[int64]struct{}{
		"services":  seenServices,
		"offers":    seenOffers,
		"employees": seenEmployees,
	} {
		if err := db.deactivateMissing(ctx, table, seen, now); err != nil {
			return err
		}
	}

	for _, h := range cfg.Holidays {
		dt, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return fmt.Errorf("parse holiday %s: %w", h.Date, err)
		}
		for id := range seenServices {
			if err := db.SetDayOff(ctx, id, dt, h.Name); err != nil {
				return fmt.Errorf("holiday %s for service %d: %w", h.Date, id, err)
			}
		}
	}

	return nil
}

// applyHoursFromConfig replaces the weekly rows of a service. Days absent from the
// config are stored as closed so a stale row never keeps a day open.
func (db *DB) applyHoursFromConfig(ctx context.Context, serviceID int64, hours []config.HoursConfig) error {
	byDay := make(map[int]config.HoursConfig, len(hours))
	for _, h := range hours {
		byDay[h.Day] = h
	}

	for day := 1; day <= 7; day++ {
		row := &model.OpeningHours{ServiceID: serviceID, DayOfWeek: day, Closed: true}
		if h, ok := byDay[day]; ok && !h.Closed {
			row.OpenTime = h.Open
			row.CloseTime = h.Close
			row.BreakStart = h.BreakStart
			row.BreakEnd = h.BreakEnd
			row.Closed = false
		}
		if err := db.UpsertOpeningHours(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) deactivateMissing(ctx context.Context, table string, seen map[int64]struct{}, now time.Time) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE is_active = 1`, table))
	if err != nil {
		return err
	}

	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range stale {
		q := fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE id = ?`, table)
		if _, err := db.ExecContext(ctx, q, now, id); err != nil {
			return fmt.Errorf("deactivate %s %d: %w", table, id, err)
		}
	}
	return nil
}

func activeOrDefault(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func timezoneOrUTC(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

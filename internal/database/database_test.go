package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/config"
	"appointo/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testCatalog() *config.CatalogConfig {
	return &config.CatalogConfig{
		Services: []config.ServiceConfig{{
			ID:       1,
			Name:     "Physiotherapy",
			Timezone: "Europe/Warsaw",
			IsActive: true,
			OpeningHours: []config.HoursConfig{
				{Day: 1, Open: "09:00", Close: "17:00", BreakStart: "12:00", BreakEnd: "13:00"},
				{Day: 2, Open: "09:00", Close: "17:00"},
				{Day: 7, Closed: true},
			},
			Offers:    []config.OfferConfig{{ID: 10, Name: "Consultation", DurationMinutes: 30, PriceCents: 12000, Currency: "PLN"}},
			Employees: []config.EmployeeConfig{{ID: 100, Name: "Anna", TelegramChatID: 555}, {ID: 101, Name: "Piotr"}},
		}},
		Holidays: []config.HolidayConfig{{Date: "2026-12-25", Name: "Christmas"}},
	}
}

func seededDB(t *testing.T) *DB {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.SyncCatalogFromConfig(context.Background(), testCatalog()))
	return db
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 16, hour, min, 0, 0, time.UTC)
}

func newBooking(employeeID int64, start time.Time, minutes int) *model.Booking {
	return &model.Booking{
		ServiceID:  1,
		OfferID:    10,
		EmployeeID: employeeID,
		UserID:     42,
		StartTime:  start,
		EndTime:    start.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestSyncCatalogFromConfig(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	svc, err := db.GetService(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Physiotherapy", svc.Name)
	assert.Equal(t, "Europe/Warsaw", svc.Timezone)

	offer, err := db.GetOffer(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, offer.DurationMinutes)
	assert.Equal(t, int64(12000), offer.PriceCents)

	emp, err := db.GetEmployee(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(555), emp.TelegramChatID)

	hours, err := db.ListOpeningHours(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hours, 7)
	assert.Equal(t, "12:00", hours[0].BreakStart)
	assert.True(t, hours[2].Closed, "unconfigured day is closed")
	assert.True(t, hours[6].Closed)

	monday, err := db.GetOpeningHours(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, monday)
	assert.Equal(t, "09:00", monday.OpenTime)

	override, err := db.GetScheduleOverride(ctx, 1, time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.True(t, override.Closed)
	assert.Equal(t, "Christmas", override.Reason)

	// Re-sync drops an employee and renames the service.
	cfg := testCatalog()
	cfg.Services[0].Name = "Physio"
	cfg.Services[0].Employees = cfg.Services[0].Employees[:1]
	require.NoError(t, db.SyncCatalogFromConfig(ctx, cfg))

	svc, err = db.GetService(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Physio", svc.Name, "cache purged on sync")

	employees, err := db.ListEmployees(ctx, 1)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, int64(100), employees[0].ID)

	services, err := db.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}

func TestCatalogNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.GetService(ctx, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = db.GetOffer(ctx, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = db.GetEmployee(ctx, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	h, err := db.GetOpeningHours(ctx, 5, 1)
	assert.NoError(t, err)
	assert.Nil(t, h)

	o, err := db.GetScheduleOverride(ctx, 5, time.Now())
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestScheduleOverrides(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	date := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.SetSpecialHours(ctx, 1, date, "10:00", "14:00", "inventory"))
	o, err := db.GetScheduleOverride(ctx, 1, date)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.False(t, o.Closed)
	assert.Equal(t, "10:00", o.OpenTime)
	assert.Equal(t, "14:00", o.CloseTime)

	require.NoError(t, db.SetDayOff(ctx, 1, date, "training"))
	o, err = db.GetScheduleOverride(ctx, 1, date)
	require.NoError(t, err)
	assert.True(t, o.Closed)
	assert.Empty(t, o.OpenTime)

	require.NoError(t, db.DeleteScheduleOverride(ctx, 1, date))
	o, err = db.GetScheduleOverride(ctx, 1, date)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestCreateBookingTx(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	first := newBooking(100, at(10, 0), 30)
	require.NoError(t, db.CreateBookingTx(ctx, first))
	assert.NotZero(t, first.ID)
	assert.NotEmpty(t, first.Reference)
	assert.Equal(t, model.StatusConfirmed, first.Status)

	tests := []struct {
		name     string
		booking  *model.Booking
		conflict bool
	}{
		{"same interval", newBooking(100, at(10, 0), 30), true},
		{"partial overlap", newBooking(100, at(10, 15), 30), true},
		{"covering", newBooking(100, at(9, 30), 90), true},
		{"touching before", newBooking(100, at(9, 30), 30), false},
		{"touching after", newBooking(100, at(10, 30), 30), false},
		{"other employee", newBooking(101, at(10, 0), 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.CreateBookingTx(ctx, tt.booking)
			if tt.conflict {
				assert.ErrorIs(t, err, apperr.ErrConflict)
				return
			}
			assert.NoError(t, err)
		})
	}

	stored, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.StartTime.Equal(at(10, 0)))
	assert.True(t, stored.EndTime.Equal(at(10, 30)))
}

func TestCreateBookingTx_InvalidInterval(t *testing.T) {
	db := seededDB(t)
	err := db.CreateBookingTx(context.Background(), newBooking(100, at(10, 0), 0))
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestCreateBookingTx_ConcurrentSameSlot(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.CreateBookingTx(ctx, newBooking(100, at(11, 0), 30))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.KindOf(err) == apperr.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestCanceledBookingDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	b := newBooking(100, at(14, 0), 30)
	require.NoError(t, db.CreateBookingTx(ctx, b))

	canceled, err := db.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, canceled.Status)

	_, err = db.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = db.CancelBooking(ctx, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.NoError(t, db.CreateBookingTx(ctx, newBooking(100, at(14, 0), 30)))
}

func TestRescheduleBookingTx(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	a := newBooking(100, at(9, 0), 30)
	b := newBooking(100, at(10, 0), 30)
	require.NoError(t, db.CreateBookingTx(ctx, a))
	require.NoError(t, db.CreateBookingTx(ctx, b))

	// Shifting within its own interval ignores itself.
	moved := *a
	moved.StartTime = at(9, 15)
	moved.EndTime = at(9, 45)
	require.NoError(t, db.RescheduleBookingTx(ctx, &moved))
	assert.Equal(t, a.Reference, moved.Reference)

	clash := *a
	clash.StartTime = at(9, 45)
	clash.EndTime = at(10, 15)
	assert.ErrorIs(t, db.RescheduleBookingTx(ctx, &clash), apperr.ErrConflict)

	missing := *a
	missing.ID = 9999
	assert.ErrorIs(t, db.RescheduleBookingTx(ctx, &missing), apperr.ErrNotFound)

	_, err := db.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	canceled := *b
	canceled.StartTime = at(15, 0)
	canceled.EndTime = at(15, 30)
	assert.ErrorIs(t, db.RescheduleBookingTx(ctx, &canceled), apperr.ErrBadRequest)
}

func TestBookingsOnDay(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	late := newBooking(100, at(15, 0), 30)
	early := newBooking(100, at(9, 0), 30)
	overnight := newBooking(100, time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC), 60)
	nextDay := newBooking(100, time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC), 30)
	for _, b := range []*model.Booking{late, early, overnight, nextDay} {
		require.NoError(t, db.CreateBookingTx(ctx, b))
	}

	from := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	got, err := db.BookingsOnDay(ctx, 100, from, to, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, overnight.ID, got[0].ID, "booking spilling over midnight intersects the day")
	assert.Equal(t, early.ID, got[1].ID)
	assert.Equal(t, late.ID, got[2].ID)

	got, err = db.BookingsOnDay(ctx, 100, from, to, early.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = db.BookingsOnDay(ctx, 101, from, to, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := db.ListBookingsRange(ctx, from, to)
	require.NoError(t, err)
	assert.Len(t, all, 2, "range filters by start")

	mine, err := db.ListUserBookings(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, mine, 4)
	assert.Equal(t, nextDay.ID, mine[0].ID)
}

func TestDueReminders(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	soon := newBooking(100, at(10, 0), 30)
	later := newBooking(100, at(20, 0), 30)
	require.NoError(t, db.CreateBookingTx(ctx, soon))
	require.NoError(t, db.CreateBookingTx(ctx, later))

	due, err := db.ListDueReminders(ctx, at(8, 0), at(12, 0))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)

	require.NoError(t, db.MarkReminderSent(ctx, soon.ID))
	due, err = db.ListDueReminders(ctx, at(8, 0), at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestOpinions(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)

	o := &model.Opinion{ServiceID: 1, UserID: 42, Rating: 5, Content: "Great"}
	require.NoError(t, db.CreateOpinion(ctx, o))
	assert.NotZero(t, o.ID)

	assert.ErrorIs(t, db.CreateOpinion(ctx, &model.Opinion{ServiceID: 1, Rating: 6}), apperr.ErrBadRequest)
	assert.ErrorIs(t, db.CreateOpinion(ctx, &model.Opinion{ServiceID: 7, Rating: 3}), apperr.ErrNotFound)

	list, err := db.ListOpinions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := db.GetOpinion(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Great", got.Content)

	require.NoError(t, db.DeleteOpinion(ctx, o.ID))
	assert.ErrorIs(t, db.DeleteOpinion(ctx, o.ID), apperr.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	n := &model.Notification{UserID: 42, BookingID: 3, Kind: model.NotificationBookingCreated, Message: "Booked"}
	require.NoError(t, db.CreateNotification(ctx, n))
	require.NoError(t, db.CreateNotification(ctx, &model.Notification{UserID: 42, Kind: model.NotificationReminder, Message: "Soon"}))

	all, err := db.ListNotifications(ctx, 42, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, db.MarkNotificationRead(ctx, n.ID))
	unread, err := db.ListNotifications(ctx, 42, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, model.NotificationReminder, unread[0].Kind)

	assert.ErrorIs(t, db.MarkNotificationRead(ctx, 999), apperr.ErrNotFound)
}

func TestBackupService(t *testing.T) {
	ctx := context.Background()
	db := seededDB(t)
	logger := zerolog.Nop()
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	stale := filepath.Join(dir, "backup_20000101_000000.000.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o600))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	assert.Equal(t, 1, svc.CleanupOldBackups(time.Now()))
	assert.NoFileExists(t, stale)
	assert.FileExists(t, path)
}

package slots

import (
	"context"
	"testing"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements HoursStore and BookingStore in memory.
type fakeStore struct {
	hours     map[int]model.OpeningHours        // ISO weekday
	overrides map[string]model.ScheduleOverride // YYYY-MM-DD
	bookings  []model.Booking

	hoursCalls    int
	bookingsCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hours:     make(map[int]model.OpeningHours),
		overrides: make(map[string]model.ScheduleOverride),
	}
}

func (f *fakeStore) openAllWeek(open, closeAt string) *fakeStore {
	for d := 1; d <= 7; d++ {
		f.hours[d] = model.OpeningHours{ServiceID: 1, DayOfWeek: d, OpenTime: open, CloseTime: closeAt}
	}
	return f
}

func (f *fakeStore) GetScheduleOverride(_ context.Context, _ int64, date time.Time) (*model.ScheduleOverride, error) {
	f.hoursCalls++
	if o, ok := f.overrides[date.Format("2006-01-02")]; ok {
		return &o, nil
	}
	return nil, nil
}

func (f *fakeStore) GetOpeningHours(_ context.Context, _ int64, day int) (*model.OpeningHours, error) {
	f.hoursCalls++
	if h, ok := f.hours[day]; ok {
		return &h, nil
	}
	return nil, nil
}

func (f *fakeStore) BookingsOnDay(_ context.Context, employeeID int64, from, to time.Time, excludeID int64) ([]model.Booking, error) {
	f.bookingsCalls++
	var out []model.Booking
	for _, b := range f.bookings {
		if b.EmployeeID != employeeID || b.ID == excludeID || !b.IsActive() {
			continue
		}
		if b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) book(id int64, start time.Time, minutes int) {
	f.bookings = append(f.bookings, model.Booking{
		ID:         id,
		EmployeeID: 7,
		StartTime:  start,
		EndTime:    start.Add(time.Duration(minutes) * time.Minute),
		Status:     model.StatusConfirmed,
	})
}

var (
	testService  = &model.Service{ID: 1, Name: "Dental", Timezone: "UTC", IsActive: true}
	testEmployee = &model.Employee{ID: 7, ServiceID: 1, Name: "Anna", IsActive: true}
	offer30      = &model.Offer{ID: 3, ServiceID: 1, Name: "Check-up", DurationMinutes: 30, IsActive: true}
	offer45      = &model.Offer{ID: 4, ServiceID: 1, Name: "Cleaning", DurationMinutes: 45, IsActive: true}
)

// 2026-03-16 is a Monday.
func mon(hour, min int) time.Time {
	return time.Date(2026, 3, 16, hour, min, 0, 0, time.UTC)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestGenerator(store *fakeStore, now time.Time, opts ...Option) *Generator {
	opts = append([]Option{WithClock(fixedClock(now))}, opts...)
	return NewGenerator(NewHoursProvider(store), NewStoreConflictSource(store), opts...)
}

func clockTimes(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.Format("15:04")
	}
	return out
}

func TestGenerate_FullDay(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "17:00")
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	slots, err := g.Generate(context.Background(), Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0)})
	require.NoError(t, err)
	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0].StartTime.Format("15:04"))
	assert.Equal(t, "16:30", slots[15].StartTime.Format("15:04"))
}

func TestGenerate_ExistingBookingRemovesSlot(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "17:00")
	store.book(1, mon(10, 0), 30)
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	slots, err := g.Generate(context.Background(), Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0)})
	require.NoError(t, err)
	times := clockTimes(slots)
	assert.Len(t, times, 15)
	assert.NotContains(t, times, "10:00")
	assert.Contains(t, times, "09:30")
	assert.Contains(t, times, "10:30")
}

func TestGenerate_Closed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *fakeStore)
	}{
		{"weekday marked closed", func(s *fakeStore) {
			s.hours[1] = model.OpeningHours{DayOfWeek: 1, Closed: true}
		}},
		{"weekday missing", func(s *fakeStore) { delete(s.hours, 1) }},
		{"day off override", func(s *fakeStore) {
			s.overrides["2026-03-16"] = model.ScheduleOverride{Closed: true, Reason: "holiday"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore().openAllWeek("09:00", "17:00")
			tt.setup(store)
			g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

			slots, err := g.Generate(context.Background(), Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0)})
			require.NoError(t, err)
			assert.Empty(t, slots)

			// Closed stays empty in edit mode too.
			original := &model.Booking{ID: 9, EmployeeID: 7, StartTime: mon(10, 0), EndTime: mon(10, 30), Status: model.StatusConfirmed}
			slots, err = g.Generate(context.Background(), Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0), Original: original})
			require.NoError(t, err)
			assert.Empty(t, slots)
		})
	}
}

func TestGenerate_SpecialHoursOverride(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "17:00")
	store.overrides["2026-03-16"] = model.ScheduleOverride{OpenTime: "12:00", CloseTime: "13:00"}
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	slots, err := g.Generate(context.Background(), Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"12:00", "12:30"}, clockTimes(slots))
}

func TestGenerate_Properties(t *testing.T) {
	store := newFakeStore()
	store.hours[1] = model.OpeningHours{DayOfWeek: 1, OpenTime: "08:15", CloseTime: "18:40", BreakStart: "12:00", BreakEnd: "12:45"}
	store.book(1, mon(9, 0), 45)
	store.book(2, mon(13, 10), 20)
	store.book(3, mon(17, 50), 60)
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	for _, offer := range []*model.Offer{offer30, offer45, {ID: 5, ServiceID: 1, DurationMinutes: 25, IsActive: true}} {
		q := Query{Service: testService, Offer: offer, Employee: testEmployee, Date: mon(0, 0)}
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		require.NotEmpty(t, slots)

		open, closeAt := mon(8, 15), mon(18, 40)
		for i, s := range slots {
			assert.True(t, s.EndTime.Equal(s.StartTime.Add(offer.Duration())), "end = start + duration")
			assert.False(t, s.StartTime.Before(open))
			assert.False(t, s.EndTime.After(closeAt))
			assert.False(t, isOverlapping(s.StartTime, s.EndTime, mon(12, 0), mon(12, 45)), "break is skipped")
			for _, b := range store.bookings {
				assert.False(t, isOverlapping(s.StartTime, s.EndTime, b.StartTime, b.EndTime),
					"slot %s overlaps booking %d", s.StartTime.Format("15:04"), b.ID)
			}
			if i > 0 {
				assert.False(t, s.StartTime.Before(slots[i-1].EndTime), "slots do not overlap")
				assert.True(t, s.StartTime.After(slots[i-1].StartTime), "ascending")
			}
		}

		again, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, slots, again, "idempotent")
	}
}

func TestGenerate_PastExclusion(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "17:00")
	q := Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0)}

	t.Run("same day keeps slots at or after now", func(t *testing.T) {
		g := newTestGenerator(store, mon(12, 10))
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		require.NotEmpty(t, slots)
		assert.Equal(t, "12:30", slots[0].StartTime.Format("15:04"))
		assert.Len(t, slots, 9)
	})

	t.Run("start equal to now is available", func(t *testing.T) {
		g := newTestGenerator(store, mon(12, 30))
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, "12:30", slots[0].StartTime.Format("15:04"))
	})

	t.Run("past day is empty", func(t *testing.T) {
		g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, 2))
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("edit mode keeps the original slot", func(t *testing.T) {
		store.bookings = nil
		store.book(9, mon(10, 0), 30)
		original := store.bookings[0]

		g := newTestGenerator(store, mon(12, 10))
		edit := q
		edit.Original = &original
		slots, err := g.Generate(context.Background(), edit)
		require.NoError(t, err)
		assert.Equal(t, "10:00", slots[0].StartTime.Format("15:04"))
		assert.Equal(t, "12:30", slots[1].StartTime.Format("15:04"))

		// Whole day in the past: only the original remains.
		g = newTestGenerator(store, mon(0, 0).AddDate(0, 0, 2))
		slots, err = g.Generate(context.Background(), edit)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00"}, clockTimes(slots))
	})

	t.Run("min advance", func(t *testing.T) {
		g := newTestGenerator(store, mon(12, 10), WithMinAdvance(time.Hour))
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, "13:30", slots[0].StartTime.Format("15:04"))
	})

	t.Run("max advance", func(t *testing.T) {
		g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1), WithMaxAdvance(34*time.Hour+30*time.Minute))
		slots, err := g.Generate(context.Background(), q)
		require.NoError(t, err)
		// 10:00 is taken by the booking above.
		assert.Equal(t, []string{"09:00", "09:30", "10:30"}, clockTimes(slots))
	})
}

func TestGenerate_EditModeInsertsOffGridOriginal(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "12:00")
	store.book(9, mon(10, 15), 30)
	store.book(10, mon(11, 0), 30)
	original := store.bookings[0]
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	q := Query{Service: testService, Offer: offer30, Employee: testEmployee, Date: mon(0, 0), Original: &original}
	slots, err := g.Generate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:15", "10:30", "11:30"}, clockTimes(slots))

	// Another employee's query ignores the original.
	other := &model.Employee{ID: 8, ServiceID: 1, IsActive: true}
	q.Employee = other
	slots, err = g.Generate(context.Background(), q)
	require.NoError(t, err)
	assert.NotContains(t, clockTimes(slots), "10:15")
}

func TestGenerate_EditModeOriginalRespectsConflicts(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "12:00")
	store.book(9, mon(10, 0), 30)
	store.book(10, mon(10, 30), 30)
	original := store.bookings[0]

	tests := []struct {
		name  string
		offer *model.Offer
		now   time.Time
		want  []string
	}{
		{"same length keeps the original", offer30, mon(0, 0).AddDate(0, 0, -1), []string{"09:00", "09:30", "10:00", "11:00", "11:30"}},
		{"longer offer overlapping the next booking drops it", offer45, mon(0, 0).AddDate(0, 0, -1), []string{"09:00", "09:45", "11:15"}},
		{"past day keeps only a fitting original", offer30, mon(0, 0).AddDate(0, 0, 2), []string{"10:00"}},
		{"past day with a longer offer offers nothing", offer45, mon(0, 0).AddDate(0, 0, 2), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(store, tt.now)
			q := Query{Service: testService, Offer: tt.offer, Employee: testEmployee, Date: mon(0, 0), Original: &original}
			slots, err := g.Generate(context.Background(), q)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, slots)
				return
			}
			assert.Equal(t, tt.want, clockTimes(slots))
		})
	}
}

func TestGenerate_EditModeOriginalOffGrid(t *testing.T) {
	store := newFakeStore()
	// A 45 minute offer has no grid candidate around this break.
	store.hours[1] = model.OpeningHours{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "11:00", BreakStart: "09:40", BreakEnd: "10:00"}
	g := newTestGenerator(store, mon(0, 0).AddDate(0, 0, -1))

	tests := []struct {
		name  string
		start time.Time
		want  []string
	}{
		{"fits after the break on an empty grid", mon(10, 5), []string{"10:05"}},
		{"runs past closing", mon(10, 30), nil},
		{"runs into the break", mon(9, 10), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := model.Booking{ID: 9, EmployeeID: 7, StartTime: tt.start, EndTime: tt.start.Add(45 * time.Minute), Status: model.StatusConfirmed}
			q := Query{Service: testService, Offer: offer45, Employee: testEmployee, Date: mon(0, 0), Original: &original}

			all, err := g.GenerateAll(context.Background(), q)
			require.NoError(t, err)
			assert.Empty(t, GetAvailableSlots(all))

			slots, err := g.Generate(context.Background(), q)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, slots)
				return
			}
			assert.Equal(t, tt.want, clockTimes(slots))
		})
	}
}

func TestGenerate_InvalidDuration(t *testing.T) {
	store := newFakeStore().openAllWeek("09:00", "17:00")
	g := newTestGenerator(store, mon(0, 0))

	for _, minutes := range []int{0, -30} {
		_, err := g.Generate(context.Background(), Query{
			Service:  testService,
			Offer:    &model.Offer{ID: 1, DurationMinutes: minutes},
			Employee: testEmployee,
			Date:     mon(0, 0),
		})
		assert.ErrorIs(t, err, apperr.ErrBadRequest)
	}
	assert.Zero(t, store.hoursCalls, "rejected before any lookup")
	assert.Zero(t, store.bookingsCalls)
}

func TestGenerate_DaylightSaving(t *testing.T) {
	warsaw := &model.Service{ID: 1, Timezone: "Europe/Warsaw", IsActive: true}
	loc, err := warsaw.Location()
	require.NoError(t, err)

	t.Run("spring forward keeps the wall clock grid", func(t *testing.T) {
		store := newFakeStore().openAllWeek("09:00", "17:00")
		day := time.Date(2026, 3, 29, 0, 0, 0, 0, loc)
		g := newTestGenerator(store, day.AddDate(0, 0, -1))

		slots, err := g.Generate(context.Background(), Query{Service: warsaw, Offer: offer30, Employee: testEmployee, Date: day})
		require.NoError(t, err)
		require.Len(t, slots, 16)
		info := ToSlotInfo(slots, loc)
		assert.Equal(t, "09:00", info[0].Time)
		assert.Equal(t, "2026-03-29T09:00:00+02:00", info[0].Datetime)
		assert.Equal(t, "16:30", info[15].Time)
	})

	t.Run("fall back night stays non overlapping", func(t *testing.T) {
		store := newFakeStore().openAllWeek("01:00", "04:00")
		day := time.Date(2026, 10, 25, 0, 0, 0, 0, loc)
		g := newTestGenerator(store, day.AddDate(0, 0, -1))

		offer := &model.Offer{ID: 6, ServiceID: 1, DurationMinutes: 60, IsActive: true}
		slots, err := g.Generate(context.Background(), Query{Service: warsaw, Offer: offer, Employee: testEmployee, Date: day})
		require.NoError(t, err)
		require.Len(t, slots, 3)
		for i := 1; i < len(slots); i++ {
			assert.False(t, slots[i].StartTime.Before(slots[i-1].EndTime))
		}
	})

	t.Run("bookings on the local day are found", func(t *testing.T) {
		store := newFakeStore().openAllWeek("09:00", "17:00")
		store.book(1, time.Date(2026, 3, 29, 9, 0, 0, 0, loc), 30)
		day := time.Date(2026, 3, 29, 0, 0, 0, 0, loc)
		g := newTestGenerator(store, day.AddDate(0, 0, -1))

		slots, err := g.Generate(context.Background(), Query{Service: warsaw, Offer: offer30, Employee: testEmployee, Date: day})
		require.NoError(t, err)
		assert.Equal(t, "09:30", slots[0].StartTime.In(loc).Format("15:04"))
	})
}

func TestContainsAndInsertSorted(t *testing.T) {
	slots := []Slot{
		{StartTime: mon(9, 0), EndTime: mon(9, 30), Available: true},
		{StartTime: mon(10, 0), EndTime: mon(10, 30), Available: true},
	}
	assert.True(t, Contains(slots, mon(10, 0)))
	assert.False(t, Contains(slots, mon(9, 30)))

	slots = insertSorted(slots, Slot{StartTime: mon(9, 30), EndTime: mon(10, 0), Available: true})
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, clockTimes(slots))

	slots = insertSorted(slots, Slot{StartTime: mon(8, 0), EndTime: mon(8, 30), Available: true})
	slots = insertSorted(slots, Slot{StartTime: mon(11, 0), EndTime: mon(11, 30), Available: true})
	slots = insertSorted(slots, Slot{StartTime: mon(10, 0), EndTime: mon(10, 30), Available: true})
	assert.Equal(t, []string{"08:00", "09:00", "09:30", "10:00", "11:00"}, clockTimes(slots))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes  int
		expected string
	}{
		{30, "30 min"},
		{60, "1 h"},
		{90, "1 h 30 min"},
		{120, "2 h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatDuration(tt.minutes))
	}
}

package slots

import (
	"context"
	"testing"
	"time"

	"appointo/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoursProvider_Window(t *testing.T) {
	store := newFakeStore()
	store.hours[1] = model.OpeningHours{DayOfWeek: 1, OpenTime: "09:00", CloseTime: "17:00", BreakStart: "12:00", BreakEnd: "13:00"}
	store.hours[2] = model.OpeningHours{DayOfWeek: 2, OpenTime: "18:00", CloseTime: "09:00"}
	store.hours[3] = model.OpeningHours{DayOfWeek: 3, OpenTime: "9am", CloseTime: "17:00"}
	p := NewHoursProvider(store)
	ctx := context.Background()

	t.Run("weekly row with break", func(t *testing.T) {
		w, err := p.Window(ctx, testService, mon(15, 0))
		require.NoError(t, err)
		assert.False(t, w.Closed)
		assert.True(t, w.Open.Equal(mon(9, 0)))
		assert.True(t, w.Close.Equal(mon(17, 0)))
		assert.True(t, w.HasBreak())
		assert.True(t, w.BreakStart.Equal(mon(12, 0)))
	})

	t.Run("inverted window is closed", func(t *testing.T) {
		w, err := p.Window(ctx, testService, mon(0, 0).AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.True(t, w.Closed)
	})

	t.Run("malformed time is an error", func(t *testing.T) {
		_, err := p.Window(ctx, testService, mon(0, 0).AddDate(0, 0, 2))
		assert.Error(t, err)
	})

	t.Run("missing weekday is closed", func(t *testing.T) {
		w, err := p.Window(ctx, testService, mon(0, 0).AddDate(0, 0, 3))
		require.NoError(t, err)
		assert.True(t, w.Closed)
	})

	t.Run("override wins", func(t *testing.T) {
		store.overrides["2026-03-16"] = model.ScheduleOverride{OpenTime: "10:00", CloseTime: "11:00", Reason: "training"}
		defer delete(store.overrides, "2026-03-16")

		w, err := p.Window(ctx, testService, mon(8, 0))
		require.NoError(t, err)
		assert.True(t, w.Open.Equal(mon(10, 0)))
		assert.False(t, w.HasBreak())
		assert.Equal(t, "training", w.Reason)
	})

	t.Run("date resolved in service location", func(t *testing.T) {
		tokyo := &model.Service{ID: 1, Timezone: "Asia/Tokyo"}
		// 2026-03-15 20:00 UTC is already Monday in Tokyo.
		w, err := p.Window(ctx, tokyo, time.Date(2026, 3, 15, 20, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, w.Closed)
		assert.Equal(t, "2026-03-16T09:00:00+09:00", w.Open.Format(time.RFC3339))
	})
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{"09:30", 9, 30, false},
		{"24:00", 24, 0, false},
		{"24:30", 0, 0, true},
		{"25:00", 0, 0, true},
		{"9", 0, 0, true},
		{"10:75", 0, 0, true},
		{"ab:00", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := parseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, tt.m, m)
		})
	}
}

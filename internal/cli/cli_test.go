package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/booking"
	"appointo/internal/client"
	"appointo/internal/config"
	"appointo/internal/model"
	"appointo/internal/slots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	taken      map[string]bool
	conflicts  int
	creates    []booking.CreateRequest
	reschedule []booking.RescheduleRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{taken: map[string]bool{}}
}

func (f *fakeAPI) GetService(_ context.Context, id int64) (*client.ServiceDetail, error) {
	if id != 1 {
		return nil, apperr.NotFound("service %d not found", id)
	}
	return &client.ServiceDetail{
		Service:   model.Service{ID: 1, Name: "Dental", Timezone: "UTC", IsActive: true},
		Employees: []model.Employee{{ID: 7, ServiceID: 1, Name: "Anna", IsActive: true}},
		Offers: []model.Offer{{
			ID: 3, ServiceID: 1, Name: "Checkup", DurationMinutes: 30,
			PriceCents: 5000, Currency: "EUR", IsActive: true,
		}},
	}, nil
}

func (f *fakeAPI) GetBooking(_ context.Context, id int64) (*model.Booking, error) {
	start := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	return &model.Booking{
		ID: id, Reference: "BK-12", ServiceID: 1, OfferID: 3, EmployeeID: 7, UserID: 42,
		StartTime: start, EndTime: start.Add(30 * time.Minute), Status: "confirmed",
	}, nil
}

func (f *fakeAPI) GetSlots(_ context.Context, req slots.Request) ([]slots.SlotInfo, error) {
	if req.Date != "2026-03-16" {
		return []slots.SlotInfo{}, nil
	}
	var out []slots.SlotInfo
	for _, hm := range []string{"09:00", "09:30", "10:00"} {
		dt := req.Date + "T" + hm + ":00Z"
		if !f.taken[dt] {
			out = append(out, slots.SlotInfo{Time: hm, Datetime: dt})
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateBooking(_ context.Context, req booking.CreateRequest) (*model.Booking, error) {
	f.creates = append(f.creates, req)
	if f.conflicts > 0 {
		f.conflicts--
		f.taken[req.Start.Format(time.RFC3339)] = true
		return nil, apperr.Conflict("slot is no longer available")
	}
	return &model.Booking{ID: 1, Reference: "BK-1", StartTime: req.Start, EndTime: req.Start.Add(30 * time.Minute)}, nil
}

func (f *fakeAPI) RescheduleBooking(_ context.Context, req booking.RescheduleRequest) (*model.Booking, error) {
	f.reschedule = append(f.reschedule, req)
	return &model.Booking{ID: req.BookingID, Reference: "BK-12", StartTime: req.Start, EndTime: req.Start.Add(30 * time.Minute)}, nil
}

func at(hm string) time.Time {
	t, _ := time.Parse(time.RFC3339, "2026-03-16T"+hm+":00Z")
	return t
}

func TestRunBook(t *testing.T) {
	tests := []struct {
		name       string
		flags      bookFlags
		input      string
		conflicts  int
		wantStarts []time.Time
		wantOut    []string
	}{
		{
			name:       "all flags",
			flags:      bookFlags{serviceID: 1, userID: 42, date: "2026-03-16", slot: "09:30", yes: true},
			wantStarts: []time.Time{at("09:30")},
			wantOut:    []string{"Specialist: Anna", "Price: 50.00 EUR", "Booked: BK-1 at 16.03.2026 09:30"},
		},
		{
			name:       "interactive with single employee and offer",
			flags:      bookFlags{serviceID: 1},
			input:      "42\n2026-03-16\n2\ny\n",
			wantStarts: []time.Time{at("09:30")},
			wantOut:    []string{"User id: ", "  1) 09:00", "Booked: BK-1"},
		},
		{
			name:       "empty day asks for another date",
			flags:      bookFlags{serviceID: 1, userID: 42},
			input:      "2026-03-15\n2026-03-16\n10:00\ny\n",
			wantStarts: []time.Time{at("10:00")},
			wantOut:    []string{"No free time on 2026-03-15."},
		},
		{
			name:    "declined",
			flags:   bookFlags{serviceID: 1, userID: 42, date: "2026-03-16", slot: "09:00"},
			input:   "n\n",
			wantOut: []string{"not booked"},
		},
		{
			name:       "conflict picks again from fresh slots",
			flags:      bookFlags{serviceID: 1, userID: 42, date: "2026-03-16"},
			input:      "1\ny\n1\ny\n",
			conflicts:  1,
			wantStarts: []time.Time{at("09:00"), at("09:30")},
			wantOut:    []string{"That time was just taken", "Booked: BK-1 at 16.03.2026 09:30"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.conflicts = tt.conflicts
			var out bytes.Buffer

			err := runBook(context.Background(), api, tt.flags, strings.NewReader(tt.input), &out)
			require.NoError(t, err, out.String())

			var starts []time.Time
			for _, c := range api.creates {
				assert.Equal(t, int64(42), c.UserID)
				assert.Equal(t, int64(7), c.EmployeeID)
				assert.Equal(t, int64(3), c.OfferID)
				starts = append(starts, c.Start)
			}
			assert.Equal(t, tt.wantStarts, starts)
			for _, s := range tt.wantOut {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestRunBook_Reschedule(t *testing.T) {
	api := newFakeAPI()
	var out bytes.Buffer

	err := runBook(context.Background(), api, bookFlags{bookingID: 12, date: "2026-03-16", slot: "10:00", yes: true},
		strings.NewReader(""), &out)
	require.NoError(t, err)

	assert.Empty(t, api.creates)
	require.Len(t, api.reschedule, 1)
	assert.Equal(t, booking.RescheduleRequest{BookingID: 12, OfferID: 3, EmployeeID: 7, Start: at("10:00")}, api.reschedule[0])
	assert.Contains(t, out.String(), "Current booking BK-12: 16.03.2026 09:00")
	assert.Contains(t, out.String(), "Reschedule booking")
	assert.NotContains(t, out.String(), "User id")
}

func TestRunBook_Errors(t *testing.T) {
	t.Run("unknown service", func(t *testing.T) {
		err := runBook(context.Background(), newFakeAPI(), bookFlags{serviceID: 9}, strings.NewReader(""), &bytes.Buffer{})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("input closed", func(t *testing.T) {
		err := runBook(context.Background(), newFakeAPI(), bookFlags{serviceID: 1}, strings.NewReader(""), &bytes.Buffer{})
		assert.ErrorIs(t, err, errInputClosed)
	})

	t.Run("conflict with --yes", func(t *testing.T) {
		api := newFakeAPI()
		api.conflicts = 1
		flags := bookFlags{serviceID: 1, userID: 42, date: "2026-03-16", slot: "09:00", yes: true}
		err := runBook(context.Background(), api, flags, strings.NewReader(""), &bytes.Buffer{})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})
}

func TestWithDefaultTimezone(t *testing.T) {
	cat := &config.CatalogConfig{Services: []config.ServiceConfig{
		{Name: "a"},
		{Name: "b", Timezone: "Europe/Warsaw"},
	}}
	withDefaultTimezone(cat, "UTC")
	assert.Equal(t, "UTC", cat.Services[0].Timezone)
	assert.Equal(t, "Europe/Warsaw", cat.Services[1].Timezone)
}

func TestVersionCmd(t *testing.T) {
	Version, CommitSHA, BuildDate = "1.2.3", "abc123", "2026-03-01"
	t.Cleanup(func() { Version, CommitSHA, BuildDate = "dev", "none", "unknown" })

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "appointo 1.2.3 (commit abc123, built 2026-03-01)\n", out.String())
}

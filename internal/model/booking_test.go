package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestBooking_Duration(t *testing.T) {
	b := Booking{
		StartTime: datetime(2026, 1, 15, 10, 0),
		EndTime:   datetime(2026, 1, 15, 10, 45),
	}
	assert.Equal(t, 45*time.Minute, b.Duration())
}

func TestBooking_OverlapsWith(t *testing.T) {
	existing := Booking{
		StartTime: datetime(2026, 1, 15, 10, 0),
		EndTime:   datetime(2026, 1, 15, 10, 30),
	}

	// Touching intervals do not overlap
	before := Booking{StartTime: datetime(2026, 1, 15, 9, 30), EndTime: datetime(2026, 1, 15, 10, 0)}
	assert.False(t, existing.OverlapsWith(&before))

	after := Booking{StartTime: datetime(2026, 1, 15, 10, 30), EndTime: datetime(2026, 1, 15, 11, 0)}
	assert.False(t, existing.OverlapsWith(&after))

	during := Booking{StartTime: datetime(2026, 1, 15, 10, 15), EndTime: datetime(2026, 1, 15, 10, 45)}
	assert.True(t, existing.OverlapsWith(&during))

	covering := Booking{StartTime: datetime(2026, 1, 15, 9, 0), EndTime: datetime(2026, 1, 15, 12, 0)}
	assert.True(t, existing.OverlapsWith(&covering))
}

func TestBooking_ContainsTime(t *testing.T) {
	b := Booking{
		StartTime: datetime(2026, 1, 15, 10, 0),
		EndTime:   datetime(2026, 1, 15, 11, 0),
	}

	assert.True(t, b.ContainsTime(datetime(2026, 1, 15, 10, 0)))
	assert.True(t, b.ContainsTime(datetime(2026, 1, 15, 10, 59)))
	assert.False(t, b.ContainsTime(datetime(2026, 1, 15, 11, 0)))
	assert.False(t, b.ContainsTime(datetime(2026, 1, 15, 9, 59)))
}

func TestBooking_IsActive(t *testing.T) {
	assert.True(t, (&Booking{Status: StatusConfirmed}).IsActive())
	assert.False(t, (&Booking{Status: StatusCanceled}).IsActive())
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, ISOWeekday(time.Monday))
	assert.Equal(t, 6, ISOWeekday(time.Saturday))
	assert.Equal(t, 7, ISOWeekday(time.Sunday))
}

func TestService_Location(t *testing.T) {
	s := Service{ID: 1}
	loc, err := s.Location()
	assert.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	s.Timezone = "Europe/Warsaw"
	loc, err = s.Location()
	assert.NoError(t, err)
	assert.Equal(t, "Europe/Warsaw", loc.String())

	s.Timezone = "Mars/Olympus"
	_, err = s.Location()
	assert.Error(t, err)
}

func TestOffer_FormatPrice(t *testing.T) {
	o := Offer{PriceCents: 4550, Currency: "EUR"}
	assert.Equal(t, "45.50 EUR", o.FormatPrice())
}

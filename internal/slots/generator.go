package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"
)

// Slot represents a candidate booking interval.
type Slot struct {
	StartTime time.Time
	EndTime   time.Time
	Available bool
}

// SlotInfo is the wire form of a slot.
type SlotInfo struct {
	Time     string `json:"time"`     // "10:00" in the service location
	Datetime string `json:"datetime"` // RFC 3339 with offset
}

// Clock returns the authoritative current time.
type Clock func() time.Time

// Query describes one slot computation over resolved entities.
// Original is set in edit mode to the booking being moved.
type Query struct {
	Service  *model.Service
	Offer    *model.Offer
	Employee *model.Employee
	Date     time.Time
	Original *model.Booking
}

// Generator computes bookable slots from opening hours, conflicts and the clock.
type Generator struct {
	hours      WindowProvider
	conflicts  ConflictSource
	now        Clock
	minAdvance time.Duration
	maxAdvance time.Duration
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(g *Generator) { g.now = c }
}

// WithMinAdvance hides slots starting sooner than d from now.
func WithMinAdvance(d time.Duration) Option {
	return func(g *Generator) { g.minAdvance = d }
}

// WithMaxAdvance hides slots starting later than d from now. Zero disables the limit.
func WithMaxAdvance(d time.Duration) Option {
	return func(g *Generator) { g.maxAdvance = d }
}

// NewGenerator creates a new slot generator.
func NewGenerator(hours WindowProvider, conflicts ConflictSource, opts ...Option) *Generator {
	g := &Generator{hours: hours, conflicts: conflicts, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now exposes the generator clock.
func (g *Generator) Now() time.Time {
	return g.now()
}

// Generate returns the available slots for q in ascending order.
// In edit mode the original start ignores the past and advance limits; it is
// inserted when the grid lacks it, as long as the day is open and the interval
// still fits the window, the break and the other bookings.
func (g *Generator) Generate(ctx context.Context, q Query) ([]Slot, error) {
	day, err := g.day(ctx, q)
	if err != nil || day == nil {
		return nil, err
	}

	available := GetAvailableSlots(day.slots)
	if original, ok := g.originalSlot(q); ok && day.fits(original.StartTime, original.EndTime) {
		available = insertSorted(available, original)
	}
	return available, nil
}

// GenerateAll returns every candidate of the day with its availability flag.
func (g *Generator) GenerateAll(ctx context.Context, q Query) ([]Slot, error) {
	day, err := g.day(ctx, q)
	if err != nil || day == nil {
		return nil, err
	}
	return day.slots, nil
}

// dayGrid is the candidate grid of one open day with what it was checked against.
type dayGrid struct {
	window Window
	busy   []model.Interval
	slots  []Slot
}

// fits reports whether [start, end) lies in the window, clear of the break and bookings.
func (d *dayGrid) fits(start, end time.Time) bool {
	if start.Before(d.window.Open) || end.After(d.window.Close) {
		return false
	}
	if d.window.HasBreak() && isOverlapping(start, end, d.window.BreakStart, d.window.BreakEnd) {
		return false
	}
	return !overlapsAny(start, end, d.busy)
}

// day builds the grid of q's date. A closed day yields nil.
func (g *Generator) day(ctx context.Context, q Query) (*dayGrid, error) {
	if q.Service == nil || q.Offer == nil || q.Employee == nil {
		return nil, apperr.BadRequest("service, offer and employee are required")
	}
	if q.Offer.DurationMinutes <= 0 {
		return nil, apperr.BadRequest("offer %d has no positive duration", q.Offer.ID)
	}

	loc, err := q.Service.Location()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	date := localMidnight(q.Date, loc)

	window, err := g.hours.Window(ctx, q.Service, date)
	if err != nil {
		return nil, fmt.Errorf("resolve window: %w", err)
	}
	if window.Closed {
		return nil, nil
	}

	var excludeID int64
	if q.Original != nil {
		excludeID = q.Original.ID
	}
	busy, err := g.conflicts.Bookings(ctx, q.Employee.ID, date, loc, excludeID)
	if err != nil {
		return nil, fmt.Errorf("load conflicts: %w", err)
	}
	grid := &dayGrid{window: window, busy: busy}

	original, hasOriginal := g.originalSlot(q)
	now := g.now()
	earliest := now.Add(g.minAdvance)
	duration := q.Offer.Duration()
	openMinutes := window.Open.Hour()*60 + window.Open.Minute()

	var prevEnd time.Time
	for k := 0; ; k++ {
		// Wall-clock grid: DST shifts never drift later candidates.
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, openMinutes+k*q.Offer.DurationMinutes, 0, 0, loc)
		end := start.Add(duration)
		if end.After(window.Close) {
			break
		}
		if start.Before(window.Open) || start.Before(prevEnd) {
			continue
		}
		prevEnd = end

		if window.HasBreak() && isOverlapping(start, end, window.BreakStart, window.BreakEnd) {
			continue
		}

		// The booking being moved keeps its start past the time limits, never past a conflict.
		inTime := !start.Before(earliest) && (g.maxAdvance <= 0 || !start.After(now.Add(g.maxAdvance)))
		keepsOriginal := hasOriginal && start.Equal(original.StartTime)
		available := !overlapsAny(start, end, busy) && (inTime || keepsOriginal)

		grid.slots = append(grid.slots, Slot{StartTime: start, EndTime: end, Available: available})
	}

	return grid, nil
}

// originalSlot returns the edit-mode slot, sized by the queried offer, when the
// original booking belongs to the queried employee and local date.
func (g *Generator) originalSlot(q Query) (Slot, bool) {
	if q.Original == nil || q.Employee == nil || q.Offer == nil || q.Original.EmployeeID != q.Employee.ID {
		return Slot{}, false
	}
	loc, err := q.Service.Location()
	if err != nil {
		return Slot{}, false
	}
	if !localMidnight(q.Original.StartTime, loc).Equal(localMidnight(q.Date, loc)) {
		return Slot{}, false
	}
	start := q.Original.StartTime.In(loc)
	return Slot{StartTime: start, EndTime: start.Add(q.Offer.Duration()), Available: true}, true
}

// Contains reports whether slots offer an available slot starting at start.
func Contains(slots []Slot, start time.Time) bool {
	i := sort.Search(len(slots), func(i int) bool { return !slots[i].StartTime.Before(start) })
	return i < len(slots) && slots[i].StartTime.Equal(start) && slots[i].Available
}

// ToSlotInfo converts slots to their wire form in loc.
func ToSlotInfo(slots []Slot, loc *time.Location) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		start := s.StartTime.In(loc)
		result[i] = SlotInfo{
			Time:     start.Format("15:04"),
			Datetime: start.Format(time.RFC3339),
		}
	}
	return result
}

// GetAvailableSlots returns only available slots.
func GetAvailableSlots(slots []Slot) []Slot {
	available := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

func overlapsAny(start, end time.Time, busy []model.Interval) bool {
	// busy is ordered by start, so stop once intervals begin at or after end.
	for _, b := range busy {
		if !b.Start.Before(end) {
			return false
		}
		if isOverlapping(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}

// FormatDuration renders minutes as "45 min", "1 h" or "1 h 30 min".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}

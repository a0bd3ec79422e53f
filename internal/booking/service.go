package booking

import (
	"context"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/events"
	"appointo/internal/metrics"
	"appointo/internal/model"
	"appointo/internal/slots"

	"github.com/rs/zerolog"
)

// Store persists bookings. Create and reschedule re-check overlap inside their transaction.
type Store interface {
	slots.Catalog
	CreateBookingTx(ctx context.Context, b *model.Booking) error
	RescheduleBookingTx(ctx context.Context, b *model.Booking) error
	CancelBooking(ctx context.Context, id int64) (*model.Booking, error)
}

// CacheInvalidator drops cached conflicts for the local days touched by [start, end).
type CacheInvalidator interface {
	Invalidate(ctx context.Context, employeeID int64, start, end time.Time, loc *time.Location)
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

// CreateRequest asks for a new booking starting at Start.
type CreateRequest struct {
	OfferID    int64     `json:"offer"`
	EmployeeID int64     `json:"employee"`
	UserID     int64     `json:"user"`
	Start      time.Time `json:"datetime"`
}

// RescheduleRequest moves a booking. Zero OfferID or EmployeeID keeps the current value.
type RescheduleRequest struct {
	BookingID  int64     `json:"-"`
	OfferID    int64     `json:"offer,omitempty"`
	EmployeeID int64     `json:"employee,omitempty"`
	Start      time.Time `json:"datetime"`
}

// Service validates booking writes against freshly generated slots before committing them.
type Service struct {
	store     Store
	finder    *slots.Finder
	cache     CacheInvalidator
	publisher Publisher
	logger    zerolog.Logger
}

// NewService creates a booking service. cache and publisher may be nil.
func NewService(store Store, finder *slots.Finder, cache CacheInvalidator, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		finder:    finder,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// Create books req.Start when it is one of the currently available slots.
func (s *Service) Create(ctx context.Context, req CreateRequest) (b *model.Booking, err error) {
	defer func() { metrics.IncBookingWrite("create", writeResult(err)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	q, loc, err := s.finder.Entities(ctx, req.OfferID, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	q.Date = req.Start.In(loc)

	if err := s.ensureAvailable(ctx, q, req.Start); err != nil {
		return nil, err
	}

	b = &model.Booking{
		ServiceID:  q.Service.ID,
		OfferID:    q.Offer.ID,
		EmployeeID: q.Employee.ID,
		UserID:     req.UserID,
		StartTime:  req.Start,
		EndTime:    req.Start.Add(q.Offer.Duration()),
	}
	if err := s.store.CreateBookingTx(ctx, b); err != nil {
		return nil, err
	}

	s.invalidate(ctx, b, loc)
	s.publish(ctx, events.BookingCreated, payloadFor(q, b, nil))

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("employee_id", b.EmployeeID).
		Time("start", b.StartTime).
		Msg("booking created")
	return b, nil
}

func (r CreateRequest) validate() error {
	if r.OfferID <= 0 || r.EmployeeID <= 0 || r.UserID <= 0 || r.Start.IsZero() {
		return apperr.BadRequest("offer, employee, user and datetime are required")
	}
	return nil
}

// Reschedule moves an active booking. Its own interval never blocks the move.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (b *model.Booking, err error) {
	defer func() { metrics.IncBookingWrite("reschedule", writeResult(err)) }()

	if req.BookingID <= 0 || req.Start.IsZero() {
		return nil, apperr.BadRequest("booking and datetime are required")
	}

	current, err := s.store.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, apperr.BadRequest("booking %d is canceled", current.ID)
	}

	offerID, employeeID := current.OfferID, current.EmployeeID
	if req.OfferID > 0 {
		offerID = req.OfferID
	}
	if req.EmployeeID > 0 {
		employeeID = req.EmployeeID
	}

	q, loc, err := s.finder.Entities(ctx, offerID, employeeID)
	if err != nil {
		return nil, err
	}
	q.Date = req.Start.In(loc)
	q.Original = current

	if err := s.ensureAvailable(ctx, q, req.Start); err != nil {
		return nil, err
	}

	updated := *current
	updated.ServiceID = q.Service.ID
	updated.OfferID = q.Offer.ID
	updated.EmployeeID = q.Employee.ID
	updated.StartTime = req.Start
	updated.EndTime = req.Start.Add(q.Offer.Duration())
	if err := s.store.RescheduleBookingTx(ctx, &updated); err != nil {
		return nil, err
	}

	s.invalidate(ctx, current, loc)
	s.invalidate(ctx, &updated, loc)
	s.publish(ctx, events.BookingRescheduled, payloadFor(q, &updated, current))

	s.logger.Info().
		Int64("booking_id", updated.ID).
		Time("from", current.StartTime).
		Time("to", updated.StartTime).
		Msg("booking rescheduled")
	return &updated, nil
}

// Cancel soft-deletes a booking, freeing its interval.
func (s *Service) Cancel(ctx context.Context, id int64) (b *model.Booking, err error) {
	defer func() { metrics.IncBookingWrite("cancel", writeResult(err)) }()

	if id <= 0 {
		return nil, apperr.BadRequest("invalid booking id")
	}

	b, err = s.store.CancelBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	p, loc := s.describe(ctx, b)
	s.invalidate(ctx, b, loc)
	s.publish(ctx, events.BookingCanceled, p)

	s.logger.Info().Int64("booking_id", b.ID).Msg("booking canceled")
	return b, nil
}

// ensureAvailable regenerates the slots of q and requires start to be one of them.
func (s *Service) ensureAvailable(ctx context.Context, q slots.Query, start time.Time) error {
	available, err := s.finder.Generator().Generate(ctx, q)
	if err != nil {
		return err
	}
	if !slots.Contains(available, start) {
		return apperr.Conflict("time slot is no longer available")
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, b *model.Booking, loc *time.Location) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, b.EmployeeID, b.StartTime, b.EndTime, loc)
}

func (s *Service) publish(ctx context.Context, eventType string, p events.BookingPayload) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewBookingEvent(eventType, p)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("build event")
		return
	}
	if failed := s.publisher.Publish(ctx, event); failed > 0 {
		s.logger.Warn().Int("failed", failed).Str("event", eventType).Msg("some event handlers failed")
	}
}

// describe resolves display names for b. Lookups are best effort: a canceled booking
// may reference entities that were deactivated since.
func (s *Service) describe(ctx context.Context, b *model.Booking) (events.BookingPayload, *time.Location) {
	p := events.BookingPayload{Booking: *b, Timezone: "UTC"}
	loc := time.UTC

	if svc, err := s.store.GetService(ctx, b.ServiceID); err == nil {
		p.ServiceName = svc.Name
		if l, err := svc.Location(); err == nil {
			loc = l
			p.Timezone = svc.Timezone
		}
	} else {
		s.logger.Warn().Err(err).Int64("service_id", b.ServiceID).Msg("resolve service")
	}
	if offer, err := s.store.GetOffer(ctx, b.OfferID); err == nil {
		p.OfferName = offer.Name
	}
	if emp, err := s.store.GetEmployee(ctx, b.EmployeeID); err == nil {
		p.EmployeeName = emp.Name
	}
	return p, loc
}

func payloadFor(q slots.Query, b, previous *model.Booking) events.BookingPayload {
	return events.BookingPayload{
		Booking:      *b,
		Previous:     previous,
		ServiceName:  q.Service.Name,
		OfferName:    q.Offer.Name,
		EmployeeName: q.Employee.Name,
		Timezone:     q.Service.Timezone,
	}
}

func writeResult(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

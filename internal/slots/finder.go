package slots

import (
	"context"
	"strings"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/metrics"
	"appointo/internal/model"
)

// Catalog loads the entities a slot query refers to.
type Catalog interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	GetEmployee(ctx context.Context, id int64) (*model.Employee, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
}

// Request is a slot query as received from a transport.
type Request struct {
	OfferID    int64
	EmployeeID int64
	Date       string // YYYY-MM-DD in the service location
	BookingID  int64  // optional, enables edit mode
}

// Result carries the slots and the location they were computed in.
type Result struct {
	Query    Query
	Location *time.Location
	Slots    []Slot
}

// Info renders the result slots in wire form.
func (r *Result) Info() []SlotInfo {
	return ToSlotInfo(r.Slots, r.Location)
}

// Finder validates requests, resolves entities and runs the generator.
type Finder struct {
	catalog   Catalog
	generator *Generator
}

func NewFinder(catalog Catalog, generator *Generator) *Finder {
	return &Finder{catalog: catalog, generator: generator}
}

// Generator returns the underlying generator.
func (f *Finder) Generator() *Generator {
	return f.generator
}

// Find answers a slot request. Missing parameters are BadRequest and are rejected
// before any lookup; unknown entities are NotFound.
func (f *Finder) Find(ctx context.Context, req Request) (res *Result, err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(apperr.KindOf(err))
		}
		metrics.ObserveSlotQuery(result, time.Since(started))
	}()

	if err := req.validate(); err != nil {
		return nil, err
	}

	q, loc, err := f.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	slots, err := f.generator.Generate(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result{Query: q, Location: loc, Slots: slots}, nil
}

func (r Request) validate() error {
	var missing []string
	if r.OfferID <= 0 {
		missing = append(missing, "offer")
	}
	if r.EmployeeID <= 0 {
		missing = append(missing, "employee")
	}
	if strings.TrimSpace(r.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return apperr.BadRequest("missing required parameters: %s", strings.Join(missing, ", "))
	}
	if r.BookingID < 0 {
		return apperr.BadRequest("invalid booking id")
	}
	return nil
}

// Resolve loads the offer, employee, service and optional original booking of req.
func (f *Finder) Resolve(ctx context.Context, req Request) (Query, *time.Location, error) {
	q, loc, err := f.Entities(ctx, req.OfferID, req.EmployeeID)
	if err != nil {
		return Query{}, nil, err
	}

	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), loc)
	if err != nil {
		return Query{}, nil, apperr.BadRequest("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	q.Date = date

	if req.BookingID > 0 {
		original, err := f.catalog.GetBooking(ctx, req.BookingID)
		if err != nil {
			return Query{}, nil, err
		}
		if original.IsActive() {
			q.Original = original
		}
	}
	return q, loc, nil
}

// Entities loads an active offer and employee of the same service plus the service itself.
// The returned query has no date set.
func (f *Finder) Entities(ctx context.Context, offerID, employeeID int64) (Query, *time.Location, error) {
	offer, err := f.catalog.GetOffer(ctx, offerID)
	if err != nil {
		return Query{}, nil, err
	}
	if !offer.IsActive {
		return Query{}, nil, apperr.NotFound("offer %d not found", offerID)
	}

	employee, err := f.catalog.GetEmployee(ctx, employeeID)
	if err != nil {
		return Query{}, nil, err
	}
	if !employee.IsActive {
		return Query{}, nil, apperr.NotFound("employee %d not found", employeeID)
	}
	if employee.ServiceID != offer.ServiceID {
		return Query{}, nil, apperr.BadRequest("employee %d does not provide offer %d", employee.ID, offer.ID)
	}

	service, err := f.catalog.GetService(ctx, offer.ServiceID)
	if err != nil {
		return Query{}, nil, err
	}

	loc, err := service.Location()
	if err != nil {
		return Query{}, nil, apperr.Internal(err)
	}
	return Query{Service: service, Offer: offer, Employee: employee}, loc, nil
}

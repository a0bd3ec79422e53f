package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"appointo/internal/apperr"
	"appointo/internal/model"
	"appointo/internal/slots"
)

// Step represents the current step of the booking wizard.
type Step string

const (
	StepSelectProvider Step = "select_provider"
	StepSelectDateTime Step = "select_date_time"
	StepConfirm        Step = "confirm"
	StepSubmitted      Step = "submitted"
)

// Field names a selection the wizard can require.
type Field string

const (
	FieldUser     Field = "user"
	FieldEmployee Field = "employee"
	FieldOffer    Field = "offer"
)

var (
	ErrInvalidTransition = errors.New("invalid wizard transition")
	ErrIncomplete        = errors.New("selection incomplete")
	ErrUnknownChoice     = errors.New("unknown choice")
	ErrFetchFailed       = errors.New("could not load available times, try again")
)

// SlotFetcher loads the available slots for a selection.
type SlotFetcher interface {
	GetSlots(ctx context.Context, req slots.Request) ([]slots.SlotInfo, error)
}

// BookingSubmitter writes the confirmed selection.
type BookingSubmitter interface {
	CreateBooking(ctx context.Context, req CreateRequest) (*model.Booking, error)
	RescheduleBooking(ctx context.Context, req RescheduleRequest) (*model.Booking, error)
}

// Choice is a selectable employee.
type Choice struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// OfferChoice is a selectable offer with the data the summary shows.
type OfferChoice struct {
	ID              int64  `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	Price           string `json:"price" yaml:"price"`
}

// WizardConfig configures one wizard instance.
type WizardConfig struct {
	// Required lists the selections needed to leave StepSelectProvider.
	// Empty means employee and offer.
	Required  []Field
	Employees []Choice
	Offers    []OfferChoice
	Location  *time.Location
	// BookingID puts the wizard in edit mode for that booking.
	BookingID int64
	// Initial prefills the selection, typically from the booking being edited.
	Initial Selection
}

func (c WizardConfig) required() []Field {
	if len(c.Required) == 0 {
		return []Field{FieldEmployee, FieldOffer}
	}
	return c.Required
}

func (c WizardConfig) employee(id int64) (Choice, bool) {
	for _, e := range c.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return Choice{}, len(c.Employees) == 0
}

func (c WizardConfig) offer(id int64) (OfferChoice, bool) {
	for _, o := range c.Offers {
		if o.ID == id {
			return o, true
		}
	}
	return OfferChoice{}, len(c.Offers) == 0
}

// Selection holds everything the user picked so far.
type Selection struct {
	UserID     int64
	EmployeeID int64
	OfferID    int64
	Date       string // YYYY-MM-DD
	Slot       *slots.SlotInfo
}

func (s Selection) has(f Field) bool {
	switch f {
	case FieldUser:
		return s.UserID > 0
	case FieldEmployee:
		return s.EmployeeID > 0
	case FieldOffer:
		return s.OfferID > 0
	}
	return false
}

type fetchKey struct {
	employee int64
	offer    int64
	date     string
}

func (s Selection) key() fetchKey {
	return fetchKey{employee: s.EmployeeID, offer: s.OfferID, date: s.Date}
}

// Wizard drives the SelectProvider, SelectDateTime, Confirm flow.
// Only the response of the latest slot fetch is applied.
type Wizard struct {
	mu          sync.Mutex
	cfg         WizardConfig
	fetcher     SlotFetcher
	submitter   BookingSubmitter
	transitions map[Step][]Step

	step     Step
	sel      Selection
	slots    []slots.SlotInfo
	fetched  fetchKey
	seq      uint64
	loading  bool
	fetchErr error
	summary  *Summary
	result   *model.Booking
}

// NewWizard creates a wizard at StepSelectProvider.
func NewWizard(cfg WizardConfig, fetcher SlotFetcher, submitter BookingSubmitter) *Wizard {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	sel := cfg.Initial
	if sel.Slot != nil {
		slot := *sel.Slot
		sel.Slot = &slot
	}
	return &Wizard{
		cfg:       cfg,
		fetcher:   fetcher,
		submitter: submitter,
		transitions: map[Step][]Step{
			StepSelectProvider: {StepSelectDateTime},
			StepSelectDateTime: {StepConfirm, StepSelectProvider},
			StepConfirm:        {StepSubmitted, StepSelectDateTime},
		},
		step: StepSelectProvider,
		sel:  sel,
	}
}

// CanTransition checks if a transition is allowed.
func (w *Wizard) CanTransition(from, to Step) bool {
	for _, s := range w.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Selection returns a copy of the current selection.
func (w *Wizard) Selection() Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	sel := w.sel
	if sel.Slot != nil {
		slot := *sel.Slot
		sel.Slot = &slot
	}
	return sel
}

// Slots returns the slots of the latest applied fetch.
func (w *Wizard) Slots() []slots.SlotInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]slots.SlotInfo(nil), w.slots...)
}

// Loading reports whether the latest fetch is still in flight.
func (w *Wizard) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// FetchErr returns the error of the latest fetch, nil after a success.
func (w *Wizard) FetchErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fetchErr
}

// Summary returns the summary rendered when entering StepConfirm.
func (w *Wizard) Summary() *Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Result returns the booking written by Submit.
func (w *Wizard) Result() *model.Booking {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// SelectUser sets the user the booking is made for.
func (w *Wizard) SelectUser(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	w.sel.UserID = id
	return nil
}

// SelectEmployee sets the provider. Changing it clears the chosen slot.
func (w *Wizard) SelectEmployee(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if _, ok := w.cfg.employee(id); !ok {
		return fmt.Errorf("%w: employee %d", ErrUnknownChoice, id)
	}
	if w.sel.EmployeeID != id {
		w.sel.EmployeeID = id
		w.sel.Slot = nil
	}
	return nil
}

// SelectOffer sets the offer. Changing it clears the chosen slot.
func (w *Wizard) SelectOffer(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}
	if _, ok := w.cfg.offer(id); !ok {
		return fmt.Errorf("%w: offer %d", ErrUnknownChoice, id)
	}
	if w.sel.OfferID != id {
		w.sel.OfferID = id
		w.sel.Slot = nil
	}
	return nil
}

// SelectDate picks a date on StepSelectDateTime and fetches its slots.
func (w *Wizard) SelectDate(ctx context.Context, date string) error {
	date = strings.TrimSpace(date)
	if _, err := time.ParseInLocation("2006-01-02", date, w.cfg.Location); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	w.mu.Lock()
	if w.step != StepSelectDateTime {
		w.mu.Unlock()
		return fmt.Errorf("%w: date is chosen on %s", ErrInvalidTransition, StepSelectDateTime)
	}
	if w.sel.Date != date {
		w.sel.Date = date
		w.sel.Slot = nil
	}
	stale := w.fetched != w.sel.key()
	w.mu.Unlock()

	if !stale {
		return nil
	}
	return w.fetch(ctx)
}

// SelectSlot picks one of the fetched slots by its ISO datetime.
func (w *Wizard) SelectSlot(datetime string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelectDateTime {
		return fmt.Errorf("%w: slot is chosen on %s", ErrInvalidTransition, StepSelectDateTime)
	}
	for _, s := range w.slots {
		if s.Datetime == datetime {
			slot := s
			w.sel.Slot = &slot
			return nil
		}
	}
	return fmt.Errorf("%w: slot %s", ErrUnknownChoice, datetime)
}

// Refresh refetches the slots of the current selection. Fetch failures are
// only retried through Refresh.
func (w *Wizard) Refresh(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepSelectDateTime {
		w.mu.Unlock()
		return fmt.Errorf("%w: refresh outside %s", ErrInvalidTransition, StepSelectDateTime)
	}
	w.mu.Unlock()
	return w.fetch(ctx)
}

// Next moves one step forward when the guard of the current step passes.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	switch w.step {
	case StepSelectProvider:
		if missing := w.missing(); len(missing) > 0 {
			w.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrIncomplete, joinFields(missing))
		}
		w.step = StepSelectDateTime
		stale := w.sel.Date != "" && w.fetched != w.sel.key()
		w.mu.Unlock()
		if stale {
			return w.fetch(ctx)
		}
		return nil

	case StepSelectDateTime:
		defer w.mu.Unlock()
		if w.sel.Slot == nil {
			return fmt.Errorf("%w: %s", ErrIncomplete, "time slot")
		}
		w.step = StepConfirm
		w.summary = w.render()
		return nil

	default:
		defer w.mu.Unlock()
		return fmt.Errorf("%w: no step after %s", ErrInvalidTransition, w.step)
	}
}

// Back moves one step backward. Selections are kept.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.step {
	case StepSelectDateTime:
		w.step = StepSelectProvider
	case StepConfirm:
		w.step = StepSelectDateTime
		w.summary = nil
	default:
		return fmt.Errorf("%w: no step before %s", ErrInvalidTransition, w.step)
	}
	return nil
}

// Submit writes the booking from StepConfirm. A conflict sends the wizard back
// to StepSelectDateTime with the slot cleared and fresh slots loaded.
func (w *Wizard) Submit(ctx context.Context) (*model.Booking, error) {
	w.mu.Lock()
	if !w.CanTransition(w.step, StepSubmitted) {
		step := w.step
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, step)
	}
	sel := w.sel
	bookingID := w.cfg.BookingID
	w.mu.Unlock()

	start, err := time.Parse(time.RFC3339, sel.Slot.Datetime)
	if err != nil {
		return nil, fmt.Errorf("parse slot %q: %w", sel.Slot.Datetime, err)
	}

	var b *model.Booking
	if bookingID > 0 {
		b, err = w.submitter.RescheduleBooking(ctx, RescheduleRequest{
			BookingID:  bookingID,
			OfferID:    sel.OfferID,
			EmployeeID: sel.EmployeeID,
			Start:      start,
		})
	} else {
		b, err = w.submitter.CreateBooking(ctx, CreateRequest{
			OfferID:    sel.OfferID,
			EmployeeID: sel.EmployeeID,
			UserID:     sel.UserID,
			Start:      start,
		})
	}

	if errors.Is(err, apperr.ErrConflict) {
		w.mu.Lock()
		w.sel.Slot = nil
		w.summary = nil
		w.step = StepSelectDateTime
		w.mu.Unlock()
		if ferr := w.fetch(ctx); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.step = StepSubmitted
	w.result = b
	w.mu.Unlock()
	return b, nil
}

// fetch loads slots for the current selection. A response is dropped when a
// newer fetch was started meanwhile.
func (w *Wizard) fetch(ctx context.Context) error {
	w.mu.Lock()
	w.seq++
	seq := w.seq
	key := w.sel.key()
	req := slots.Request{
		OfferID:    w.sel.OfferID,
		EmployeeID: w.sel.EmployeeID,
		Date:       w.sel.Date,
		BookingID:  w.cfg.BookingID,
	}
	w.loading = true
	w.mu.Unlock()

	got, err := w.fetcher.GetSlots(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.seq {
		return nil
	}
	w.loading = false
	if err != nil {
		// Nothing confirms the chosen slot any more.
		w.slots = nil
		w.sel.Slot = nil
		w.fetched = fetchKey{}
		w.fetchErr = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		return w.fetchErr
	}

	w.slots = got
	w.fetched = key
	w.fetchErr = nil
	if w.sel.Slot != nil && !containsDatetime(got, w.sel.Slot.Datetime) {
		w.sel.Slot = nil
	}
	return nil
}

func (w *Wizard) editable() error {
	if w.step != StepSelectProvider {
		return fmt.Errorf("%w: provider is chosen on %s", ErrInvalidTransition, StepSelectProvider)
	}
	return nil
}

func (w *Wizard) missing() []Field {
	var out []Field
	for _, f := range w.cfg.required() {
		if !w.sel.has(f) {
			out = append(out, f)
		}
	}
	return out
}

func joinFields(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func containsDatetime(list []slots.SlotInfo, datetime string) bool {
	for _, s := range list {
		if s.Datetime == datetime {
			return true
		}
	}
	return false
}

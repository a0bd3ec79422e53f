package booking

import (
	"fmt"
	"strings"
	"time"

	"appointo/internal/slots"
)

// Summary is the read-only confirmation view of a selection.
type Summary struct {
	Employee    string
	Offer       string
	Date        string
	Time        string
	Datetime    string
	Duration    string
	Price       string
	Rescheduled bool
}

// render builds the summary from the selection and config only. Caller holds w.mu.
func (w *Wizard) render() *Summary {
	s := &Summary{Rescheduled: w.cfg.BookingID > 0}

	if e, ok := w.cfg.employee(w.sel.EmployeeID); ok && e.Name != "" {
		s.Employee = e.Name
	} else {
		s.Employee = fmt.Sprintf("#%d", w.sel.EmployeeID)
	}

	offer, ok := w.cfg.offer(w.sel.OfferID)
	if ok && offer.Name != "" {
		s.Offer = offer.Name
	} else {
		s.Offer = fmt.Sprintf("#%d", w.sel.OfferID)
	}
	s.Price = offer.Price

	if w.sel.Slot != nil {
		s.Datetime = w.sel.Slot.Datetime
		s.Time = w.sel.Slot.Time
		if t, err := time.Parse(time.RFC3339, w.sel.Slot.Datetime); err == nil {
			local := t.In(w.cfg.Location)
			s.Date = local.Format("02.01.2006")
			s.Time = local.Format("15:04")
			if offer.DurationMinutes > 0 {
				s.Time += " – " + local.Add(time.Duration(offer.DurationMinutes)*time.Minute).Format("15:04")
			}
		}
	}
	if offer.DurationMinutes > 0 {
		s.Duration = slots.FormatDuration(offer.DurationMinutes)
	}
	return s
}

// String formats the summary for text clients.
func (s *Summary) String() string {
	var b strings.Builder
	if s.Rescheduled {
		b.WriteString("Reschedule booking\n\n")
	} else {
		b.WriteString("Booking details\n\n")
	}
	fmt.Fprintf(&b, "Specialist: %s\n", s.Employee)
	fmt.Fprintf(&b, "Service: %s\n", s.Offer)
	fmt.Fprintf(&b, "Date: %s\n", s.Date)
	fmt.Fprintf(&b, "Time: %s\n", s.Time)
	if s.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", s.Duration)
	}
	if s.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", s.Price)
	}
	b.WriteString("\nConfirm?")
	return b.String()
}

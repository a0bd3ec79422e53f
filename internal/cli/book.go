package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"appointo/internal/apperr"
	"appointo/internal/booking"
	"appointo/internal/client"
	"appointo/internal/model"

	"github.com/spf13/cobra"
)

var errInputClosed = errors.New("input closed")

// bookingAPI is the part of the HTTP client the book command needs.
type bookingAPI interface {
	booking.SlotFetcher
	booking.BookingSubmitter
	GetService(ctx context.Context, id int64) (*client.ServiceDetail, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
}

type bookFlags struct {
	serviceID  int64
	userID     int64
	employeeID int64
	offerID    int64
	bookingID  int64
	date       string
	slot       string // HH:MM
	yes        bool
}

func newBookCmd(opts *rootOptions) *cobra.Command {
	var flags bookFlags

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Create or reschedule a booking step by step",
		Long: "Walks through provider, date and time selection against the HTTP API.\n" +
			"Values not given as flags are asked for on stdin.",
		Example: "  appointo book --service 1 --user 42\n" +
			"  appointo book --booking 12 --date 2026-03-17 --slot 10:30 --yes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if flags.serviceID == 0 && flags.bookingID == 0 {
				return errors.New("either --service or --booking is required")
			}
			c := client.NewClient(cfg.Client.BaseURL, cfg.Client.APIKey)
			return runBook(cmd.Context(), c, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.Int64Var(&flags.serviceID, "service", 0, "service id")
	f.Int64Var(&flags.userID, "user", 0, "user id the booking is made for")
	f.Int64Var(&flags.employeeID, "employee", 0, "employee id")
	f.Int64Var(&flags.offerID, "offer", 0, "offer id")
	f.Int64Var(&flags.bookingID, "booking", 0, "reschedule this booking instead of creating one")
	f.StringVar(&flags.date, "date", "", "date in the service time zone (YYYY-MM-DD)")
	f.StringVar(&flags.slot, "slot", "", "start time (HH:MM)")
	f.BoolVarP(&flags.yes, "yes", "y", false, "confirm without asking")
	return cmd
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) askID(question string) (int64, error) {
	for {
		answer, err := p.ask(question)
		if err != nil {
			return 0, err
		}
		id, err := strconv.ParseInt(answer, 10, 64)
		if err == nil && id > 0 {
			return id, nil
		}
		fmt.Fprintf(p.out, "%q is not a valid id\n", answer)
	}
}

func runBook(ctx context.Context, api bookingAPI, flags bookFlags, in io.Reader, out io.Writer) error {
	p := &prompter{in: bufio.NewScanner(in), out: out}

	var (
		initial booking.Selection
		current *model.Booking
	)
	serviceID := flags.serviceID
	if flags.bookingID > 0 {
		b, err := api.GetBooking(ctx, flags.bookingID)
		if err != nil {
			return err
		}
		current = b
		serviceID = b.ServiceID
		initial = booking.Selection{UserID: b.UserID, EmployeeID: b.EmployeeID, OfferID: b.OfferID}
	}

	detail, err := api.GetService(ctx, serviceID)
	if err != nil {
		return err
	}
	loc, err := detail.Service.Location()
	if err != nil {
		return err
	}

	wcfg := booking.WizardConfig{
		Required:  []booking.Field{booking.FieldUser, booking.FieldEmployee, booking.FieldOffer},
		Location:  loc,
		BookingID: flags.bookingID,
		Initial:   initial,
	}
	if flags.bookingID > 0 {
		wcfg.Required = []booking.Field{booking.FieldEmployee, booking.FieldOffer}
	}
	for _, e := range detail.Employees {
		wcfg.Employees = append(wcfg.Employees, booking.Choice{ID: e.ID, Name: e.Name})
	}
	for i := range detail.Offers {
		o := &detail.Offers[i]
		wcfg.Offers = append(wcfg.Offers, booking.OfferChoice{
			ID:              o.ID,
			Name:            o.Name,
			DurationMinutes: o.DurationMinutes,
			Price:           o.FormatPrice(),
		})
	}
	if len(wcfg.Employees) == 0 || len(wcfg.Offers) == 0 {
		return apperr.NotFound("service %q has nothing to book", detail.Service.Name)
	}

	w := booking.NewWizard(wcfg, api, api)
	fmt.Fprintf(out, "%s (%s)\n", detail.Service.Name, loc)

	if err := chooseProvider(w, p, wcfg, flags); err != nil {
		return err
	}
	if err := w.Next(ctx); err != nil {
		return err
	}

	date, slot := flags.date, flags.slot
	if current != nil {
		fmt.Fprintf(out, "Current booking %s: %s\n", current.Reference, current.StartTime.In(loc).Format("02.01.2006 15:04"))
	}
	for {
		if err := chooseDateTime(ctx, w, p, &date, &slot); err != nil {
			return err
		}
		if err := w.Next(ctx); err != nil {
			return err
		}
		fmt.Fprint(out, w.Summary().String())

		if !flags.yes {
			answer, err := p.ask(" [y/N] ")
			if err != nil {
				return err
			}
			if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
				fmt.Fprintln(out, "not booked")
				return nil
			}
		}

		b, err := w.Submit(ctx)
		if errors.Is(err, apperr.ErrConflict) {
			fmt.Fprintln(out, "That time was just taken, pick another one.")
			if flags.yes {
				return err
			}
			slot = ""
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Booked: %s at %s\n", b.Reference, b.StartTime.In(loc).Format("02.01.2006 15:04"))
		return nil
	}
}

func chooseProvider(w *booking.Wizard, p *prompter, cfg booking.WizardConfig, flags bookFlags) error {
	sel := w.Selection()

	if cfg.BookingID == 0 {
		id := flags.userID
		if id == 0 {
			var err error
			if id, err = p.askID("User id: "); err != nil {
				return err
			}
		}
		if err := w.SelectUser(id); err != nil {
			return err
		}
	}

	employee := flags.employeeID
	if employee == 0 {
		employee = sel.EmployeeID
	}
	if employee == 0 && len(cfg.Employees) == 1 {
		employee = cfg.Employees[0].ID
	}
	for {
		if employee == 0 {
			for _, e := range cfg.Employees {
				fmt.Fprintf(p.out, "  %d) %s\n", e.ID, e.Name)
			}
			var err error
			if employee, err = p.askID("Specialist: "); err != nil {
				return err
			}
		}
		err := w.SelectEmployee(employee)
		if err == nil {
			break
		}
		if !errors.Is(err, booking.ErrUnknownChoice) || flags.employeeID != 0 {
			return err
		}
		fmt.Fprintln(p.out, err)
		employee = 0
	}

	offer := flags.offerID
	if offer == 0 {
		offer = sel.OfferID
	}
	if offer == 0 && len(cfg.Offers) == 1 {
		offer = cfg.Offers[0].ID
	}
	for {
		if offer == 0 {
			for _, o := range cfg.Offers {
				fmt.Fprintf(p.out, "  %d) %s, %d min, %s\n", o.ID, o.Name, o.DurationMinutes, o.Price)
			}
			var err error
			if offer, err = p.askID("Service: "); err != nil {
				return err
			}
		}
		err := w.SelectOffer(offer)
		if err == nil {
			return nil
		}
		if !errors.Is(err, booking.ErrUnknownChoice) || flags.offerID != 0 {
			return err
		}
		fmt.Fprintln(p.out, err)
		offer = 0
	}
}

// chooseDateTime loops until a slot is selected. date and slot hold preset
// answers and are cleared once they turn out unusable.
func chooseDateTime(ctx context.Context, w *booking.Wizard, p *prompter, date, slot *string) error {
	for {
		if *date == "" {
			answer, err := p.ask("Date (YYYY-MM-DD): ")
			if err != nil {
				return err
			}
			*date = answer
		}
		if err := w.SelectDate(ctx, *date); err != nil {
			if errors.Is(err, booking.ErrInvalidTransition) ||
				errors.Is(err, booking.ErrFetchFailed) && !errors.Is(err, apperr.ErrBadRequest) {
				return err
			}
			fmt.Fprintln(p.out, err)
			*date = ""
			continue
		}
		if err := w.FetchErr(); err != nil {
			return err
		}

		list := w.Slots()
		if len(list) == 0 {
			fmt.Fprintf(p.out, "No free time on %s.\n", *date)
			*date, *slot = "", ""
			continue
		}

		if *slot == "" {
			for i, s := range list {
				fmt.Fprintf(p.out, "  %d) %s\n", i+1, s.Time)
			}
			answer, err := p.ask("Time (number or HH:MM, empty for another date): ")
			if err != nil {
				return err
			}
			if answer == "" {
				*date = ""
				continue
			}
			if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(list) {
				answer = list[n-1].Time
			}
			*slot = answer
		}

		for _, s := range list {
			if s.Time == *slot {
				return w.SelectSlot(s.Datetime)
			}
		}
		fmt.Fprintf(p.out, "%s is not available on %s.\n", *slot, *date)
		*slot = ""
	}
}

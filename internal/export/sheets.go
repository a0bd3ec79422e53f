package export

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"appointo/internal/events"
	"appointo/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsAPI is the part of the Google Sheets API the sink uses.
type SheetsAPI interface {
	// Append adds rows after the table and returns the updated A1 range.
	Append(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) (string, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

type sheetsClient struct {
	svc *sheets.Service
}

// NewSheetsAPI authenticates with a service account JSON file.
func NewSheetsAPI(ctx context.Context, credentialsFile string) (SheetsAPI, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &sheetsClient{svc: svc}, nil
}

func (c *sheetsClient) Append(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) (string, error) {
	resp, err := c.svc.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (c *sheetsClient) Update(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error {
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

func (c *sheetsClient) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// SheetsSink mirrors bookings into a spreadsheet, one row per booking.
type SheetsSink struct {
	api           SheetsAPI
	spreadsheetID string
	sheet         string
	logger        zerolog.Logger

	mu       sync.Mutex
	rowCache map[int64]int
}

// NewSheetsSink creates a sink writing to sheet of spreadsheetID.
func NewSheetsSink(api SheetsAPI, spreadsheetID, sheet string, logger zerolog.Logger) *SheetsSink {
	return &SheetsSink{
		api:           api,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		logger:        logger.With().Str("component", "sheets").Logger(),
		rowCache:      make(map[int64]int),
	}
}

// Handle upserts the row of the booking carried by event.
func (s *SheetsSink) Handle(ctx context.Context, event events.Event) error {
	p, err := events.DecodeBooking(event)
	if err != nil {
		return err
	}

	loc, err := locationOf(p.Timezone)
	if err != nil {
		return err
	}
	row := Row{Booking: p.Booking, Service: p.ServiceName, Offer: p.OfferName, Employee: p.EmployeeName, Location: loc}

	if err := s.upsert(ctx, row); err != nil {
		metrics.IncSinkFailure("sheets")
		return fmt.Errorf("sheets %s: %w", event.Type, err)
	}
	return nil
}

func (s *SheetsSink) upsert(ctx context.Context, row Row) error {
	values := [][]interface{}{row.Values()}

	s.mu.Lock()
	n, ok := s.rowCache[row.Booking.ID]
	s.mu.Unlock()

	if ok {
		return s.api.Update(ctx, s.spreadsheetID, s.rowRange(n), values)
	}

	updated, err := s.api.Append(ctx, s.spreadsheetID, s.sheet+"!A1", values)
	if err != nil {
		return err
	}
	if n, ok := firstRow(updated); ok {
		s.mu.Lock()
		s.rowCache[row.Booking.ID] = n
		s.mu.Unlock()
	}
	return nil
}

// Replace rewrites the whole sheet with a header and rows.
func (s *SheetsSink) Replace(ctx context.Context, rows []Row) error {
	if err := s.api.Clear(ctx, s.spreadsheetID, s.sheet); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	values := [][]interface{}{header}
	cache := make(map[int64]int, len(rows))
	for i, r := range rows {
		values = append(values, r.Values())
		cache[r.Booking.ID] = i + 2
	}

	if err := s.api.Update(ctx, s.spreadsheetID, s.sheet+"!A1", values); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.mu.Lock()
	s.rowCache = cache
	s.mu.Unlock()
	s.logger.Info().Int("rows", len(rows)).Msg("sheet replaced")
	return nil
}

func (s *SheetsSink) rowRange(n int) string {
	last, _ := excelize.ColumnNumberToName(len(Columns))
	return fmt.Sprintf("%s!A%d:%s%d", s.sheet, n, last, n)
}

// firstRow extracts the first row number from an A1 range such as "Bookings!A5:L5".
func firstRow(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	cell, _, _ := strings.Cut(a1, ":")
	_, row, err := excelize.SplitCellName(cell)
	if err != nil {
		return 0, false
	}
	return row, true
}

func locationOf(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

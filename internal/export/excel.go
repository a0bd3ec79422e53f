package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"appointo/internal/model"

	"github.com/xuri/excelize/v2"
)

// Catalog resolves the display names of a booking.
type Catalog interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	GetEmployee(ctx context.Context, id int64) (*model.Employee, error)
}

// Row is a booking with its names resolved and times in the service location.
type Row struct {
	Booking  model.Booking
	Service  string
	Offer    string
	Employee string
	Location *time.Location
}

// Columns of the booking export, shared by the Excel file and the sheet.
var Columns = []string{
	"ID", "Reference", "Service", "Offer", "Employee", "User",
	"Date", "Start", "End", "Status", "Created", "Updated",
}

// Values renders r in column order.
func (r Row) Values() []interface{} {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	start := r.Booking.StartTime.In(loc)
	return []interface{}{
		r.Booking.ID,
		r.Booking.Reference,
		r.Service,
		r.Offer,
		r.Employee,
		r.Booking.UserID,
		start.Format("2006-01-02"),
		start.Format("15:04"),
		r.Booking.EndTime.In(loc).Format("15:04"),
		r.Booking.Status,
		r.Booking.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
		r.Booking.UpdatedAt.In(loc).Format("2006-01-02 15:04:05"),
	}
}

// BuildRows resolves names for bookings. Lookups are memoised per id.
func BuildRows(ctx context.Context, catalog Catalog, bookings []model.Booking) ([]Row, error) {
	services := make(map[int64]*model.Service)
	offers := make(map[int64]string)
	employees := make(map[int64]string)

	rows := make([]Row, 0, len(bookings))
	for _, b := range bookings {
		svc, ok := services[b.ServiceID]
		if !ok {
			s, err := catalog.GetService(ctx, b.ServiceID)
			if err != nil {
				return nil, fmt.Errorf("service %d: %w", b.ServiceID, err)
			}
			svc = s
			services[b.ServiceID] = s
		}
		loc, err := svc.Location()
		if err != nil {
			return nil, err
		}

		offer, ok := offers[b.OfferID]
		if !ok {
			o, err := catalog.GetOffer(ctx, b.OfferID)
			if err != nil {
				return nil, fmt.Errorf("offer %d: %w", b.OfferID, err)
			}
			offer = o.Name
			offers[b.OfferID] = offer
		}

		employee, ok := employees[b.EmployeeID]
		if !ok {
			e, err := catalog.GetEmployee(ctx, b.EmployeeID)
			if err != nil {
				return nil, fmt.Errorf("employee %d: %w", b.EmployeeID, err)
			}
			employee = e.Name
			employees[b.EmployeeID] = employee
		}

		rows = append(rows, Row{Booking: b, Service: svc.Name, Offer: offer, Employee: employee, Location: loc})
	}
	return rows, nil
}

// ExcelWriter writes sheets of rows with excelize.
type ExcelWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelWriter creates a new Excel writer.
func NewExcelWriter() *ExcelWriter {
	return &ExcelWriter{file: excelize.NewFile()}
}

// AddSheet adds a new sheet with the given name.
func (w *ExcelWriter) AddSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *ExcelWriter) WriteHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

// WriteRow writes a data row to the current sheet.
func (w *ExcelWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// Save writes the workbook to wr.
func (w *ExcelWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelWriter) Close() error {
	return w.file.Close()
}

// WriteBookingsXLSX writes rows as a single "Bookings" sheet.
func WriteBookingsXLSX(wr io.Writer, rows []Row) error {
	w := NewExcelWriter()
	defer w.Close()

	if err := w.AddSheet("Bookings"); err != nil {
		return err
	}
	if err := w.WriteHeader(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.WriteRow(r.Values()); err != nil {
			return fmt.Errorf("write booking %d: %w", r.Booking.ID, err)
		}
	}
	return w.Save(wr)
}

package writer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names used by the XLSX writer.
const (
	GuestsSheet   = "Guests"
	ServicesSheet = "Services"
)

var guestsHeader = []interface{}{
	"#", "Guest", "Guest ID", "Room", "Check-in", "Check-out",
	"Services", "Total", "Page Start", "Page End", "Spans Pages", "Complete", "Split",
}

var servicesHeader = []interface{}{
	"#", "Guest #", "Guest", "Service", "Tax Rate", "Qty", "Unit Price", "Total Price",
}

// XLSXWriter writes a workbook with one row per guest and one row per
// service line. Service rows reference the guest row by number.
type XLSXWriter struct{}

func (XLSXWriter) Name() string      { return "xlsx" }
func (XLSXWriter) Extension() string { return ".xlsx" }

func (XLSXWriter) Write(w io.Writer, b *Batch) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", GuestsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(ServicesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	if err := writeHeader(f, GuestsSheet, guestsHeader, bold); err != nil {
		return err
	}
	if err := writeHeader(f, ServicesSheet, servicesHeader, bold); err != nil {
		return err
	}

	serviceRow := 2
	serviceIndex := 1
	for i := range b.Records {
		r := &b.Records[i]
		guestRow := []interface{}{
			i + 1,
			r.DisplayName(),
			r.GuestID,
			r.RoomNumber,
			r.CheckInDate,
			r.CheckOutDate,
			len(r.Services),
			r.RoundedTotal(),
			r.PageStart,
			r.PageEnd,
			r.SpansPages(),
			r.IsComplete,
			r.IsSplit,
		}
		if err := setRow(f, GuestsSheet, i+2, guestRow); err != nil {
			return err
		}

		for _, s := range r.Services {
			row := []interface{}{
				serviceIndex,
				i + 1,
				r.DisplayName(),
				s.Description,
				s.TaxRate,
				s.Quantity,
				s.UnitPrice,
				s.LineTotal,
			}
			if err := setRow(f, ServicesSheet, serviceRow, row); err != nil {
				return err
			}
			serviceRow++
			serviceIndex++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

package writer

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// csvColumns defines the CSV header row.
var csvColumns = []string{
	"Guest_Name",
	"Guest_ID",
	"Room_Number",
	"Check_In_Date",
	"Check_Out_Date",
	"Services",
	"Total_Amount",
	"Service_Count",
	"Page_Start",
	"Page_End",
	"Spans_Pages",
	"Is_Complete",
	"Is_Split",
}

// CSVWriter writes one row per guest.
type CSVWriter struct {
	BOM bool
}

func (CSVWriter) Name() string      { return "csv" }
func (CSVWriter) Extension() string { return ".csv" }

func (c CSVWriter) Write(w io.Writer, b *Batch) error {
	if c.BOM {
		if _, err := w.Write(BOM); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for i := range b.Records {
		if err := cw.Write(recordToRow(&b.Records[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func recordToRow(r *types.GuestRecord) []string {
	return []string{
		r.DisplayName(),
		r.GuestID,
		r.RoomNumber,
		r.CheckInDate,
		r.CheckOutDate,
		strings.Join(r.ServiceNames(), "; "),
		formatMoney(r.TotalAmount),
		strconv.Itoa(len(r.Services)),
		strconv.Itoa(r.PageStart),
		strconv.Itoa(r.PageEnd),
		formatBool(r.SpansPages()),
		formatBool(r.IsComplete),
		formatBool(r.IsSplit),
	}
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(types.Round2(v), 'f', 2, 64)
}

func formatBool(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

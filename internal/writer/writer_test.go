package writer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/reconstruct"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

func sampleBatch() *Batch {
	res := reconstruct.Result{
		PagesProcessed: 2,
		Records: []types.GuestRecord{
			{
				GuestName: "Anna Weber", RoomNumber: "101", CheckInDate: "1.3.2024", CheckOutDate: "3.3.2024",
				Services: []types.ServiceLine{
					{Description: "Room Night", TaxRate: "7%", Quantity: 2, UnitPrice: 80, LineTotal: 160},
					{Description: "Bar & Lounge", TaxRate: "19%", Quantity: 1, UnitPrice: 12.5, LineTotal: 12.5},
				},
				TotalAmount: 172.499999, PageStart: 1, PageEnd: 2, IsComplete: true,
			},
			{
				FirstName: "Emma", LastName: "Brown", GuestID: "G0001", RoomNumber: "312",
				Services:    []types.ServiceLine{{Description: "Spa", Quantity: 1, UnitPrice: 120, LineTotal: 120}},
				TotalAmount: 120, PageStart: 2, PageEnd: 2,
			},
		},
		Diagnostics: []reconstruct.Diagnostic{{Kind: reconstruct.DiagSalvaged, Page: 2, Guest: "Emma Brown", Message: "salvaged"}},
	}
	b := NewBatch("run-1", "/in/natural_split_hotel_invoice.pdf", "stay_line", res)
	b.GeneratedAt = time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC)
	return b
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		w, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, w.Name())
		assert.Equal(t, "."+name, w.Extension())
	}
	_, err := New("pdf")
	assert.Error(t, err)
	assert.Equal(t, []string{"csv", "json", "xlsx", "xml"}, Names())
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONWriter{Indent: "  "}.Write(&buf, sampleBatch()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, 2, doc.ExtractionSummary.TotalGuests)
	assert.Equal(t, 1, doc.ExtractionSummary.CrossPageGuests)
	assert.Equal(t, 292.5, doc.ExtractionSummary.TotalRevenue)
	assert.Equal(t, "2024-11-05T10:00:00Z", doc.ExtractionSummary.ExtractionTimestamp)
	assert.Equal(t, "50.0%", doc.CrossPageAnalysis.CrossPageRate)
	require.Len(t, doc.CrossPageAnalysis.CrossPageDetails, 1)
	assert.Equal(t, "Anna Weber", doc.CrossPageAnalysis.CrossPageDetails[0].GuestName)

	require.Len(t, doc.GuestRecords, 2)
	assert.Equal(t, 172.5, doc.GuestRecords[0].TotalAmount)
	assert.Equal(t, []string{"Room Night", "Bar & Lounge"}, doc.GuestRecords[0].ServiceNames())

	assert.Equal(t, ChunkingStrategy, doc.ChunkingMetadata.ChunkingStrategy)
	assert.Equal(t, "natural_split_hotel_invoice.pdf", doc.ChunkingMetadata.Source)
	assert.Equal(t, 2, doc.ChunkingMetadata.PagesProcessed)
	require.Len(t, doc.Diagnostics, 1)

	assert.Contains(t, buf.String(), `"service": "Room Night"`)
}

func TestBuildDocument_DoesNotRoundRecordsInPlace(t *testing.T) {
	b := sampleBatch()
	_ = BuildDocument(b)
	assert.Equal(t, 172.499999, b.Records[0].TotalAmount)
}

func TestBuildDocument_EmptyIsNotNull(t *testing.T) {
	b := NewBatch("run", "x.txt", "stay_line", reconstruct.Result{})
	raw, err := json.Marshal(BuildDocument(b))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"guest_records":[]`)
	assert.Contains(t, string(raw), `"diagnostics":[]`)
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSVWriter{BOM: true}.Write(&buf, sampleBatch()))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, BOM))

	rows, err := csv.NewReader(bytes.NewReader(raw[len(BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvColumns, rows[0])
	assert.Equal(t, []string{
		"Anna Weber", "", "101", "1.3.2024", "3.3.2024",
		"Room Night; Bar & Lounge", "172.50", "2", "1", "2", "Yes", "Yes", "No",
	}, rows[1])
	assert.Equal(t, "Emma Brown", rows[2][0])
	assert.Equal(t, "G0001", rows[2][1])
}

func TestXLSXWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XLSXWriter{}.Write(&buf, sampleBatch()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	guests, err := f.GetRows(GuestsSheet)
	require.NoError(t, err)
	require.Len(t, guests, 3)
	assert.Equal(t, "Guest", guests[0][1])
	assert.Equal(t, "Anna Weber", guests[1][1])
	assert.Equal(t, "172.5", guests[1][7])

	services, err := f.GetRows(ServicesSheet)
	require.NoError(t, err)
	require.Len(t, services, 4)
	assert.Equal(t, []string{"3", "2", "Emma Brown", "Spa", "", "1", "120", "120"}, services[3])
}

func TestXMLWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXMLWriter().Write(&buf, sampleBatch()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<guests run_id="run-1" format="stay_line"`)
	assert.Contains(t, out, `<guest n="1">`)
	assert.Contains(t, out, `<Description>Bar &amp; Lounge</Description>`)
	assert.Contains(t, out, `<service n="3">`)
	assert.Contains(t, out, `<TotalAmount>172.50</TotalAmount>`)

	dec := xml.NewDecoder(strings.NewReader(out))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
}

func TestXMLWriter_PerGuestNumbering(t *testing.T) {
	w := NewXMLWriter()
	w.ServiceNumberingGlobal = false
	w.IncludeXMLDeclaration = false

	var buf bytes.Buffer
	require.NoError(t, w.Write(&buf, sampleBatch()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<guests"))
	assert.NotContains(t, out, `<service n="3">`)
	assert.Equal(t, 2, strings.Count(out, `<service n="1">`))
}

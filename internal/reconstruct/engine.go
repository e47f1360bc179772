// =============================================================================
// Guest Invoice Chunker - Reconstruction Engine
// =============================================================================
//
// The engine rebuilds guest records from page text. A guest's block may be
// cut by a page break anywhere: after the header, inside the service table,
// or just before the total line. The record that is still open at the end
// of a page is handed to the next page by value and finished there.
//
// PROCESSING FLOW:
//   1. Each line of a page is classified (internal/classifier).
//   2. ProcessPage applies the line to the single open record.
//   3. At the end of the page the open record is either completed or
//      returned to the caller as the carry-over for the next page.
//   4. After the last page a still-open record is salvaged or dropped.
//
// An Engine is owned by one goroutine and reconstructs one document at a
// time. Pages must be fed in ascending order.
//
// =============================================================================

package reconstruct

import (
	"log/slog"
	"strings"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/classifier"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// Engine reconstructs guest records for one format.
type Engine struct {
	format      *classifier.Format
	logger      *slog.Logger
	diagnostics []Diagnostic
}

// New creates an engine. A nil logger discards diagnostics output; they
// are still collected.
func New(format *classifier.Format, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		format: format,
		logger: logger.With("format", format.Name),
	}
}

// Format returns the compiled format the engine classifies with.
func (e *Engine) Format() *classifier.Format {
	return e.format
}

// Diagnostics returns the diagnostics collected since the last Reconstruct.
func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

// SplitLines splits page text into lines, accepting \n and \r\n.
func SplitLines(page string) []string {
	if page == "" {
		return nil
	}
	lines := strings.Split(page, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// =============================================================================
// PAGE PROCESSOR
// =============================================================================

// ProcessPage applies one page of lines to the carried-over record.
//
// PARAMETERS:
//   - lines: The page text split into lines.
//   - page: The 1-based page number.
//   - carry: The record left open by the previous page, or nil. It is
//     cloned and never modified.
//
// RETURNS:
//   - The records completed on this page, in line order.
//   - The record still open at the end of the page, or nil.
func (e *Engine) ProcessPage(lines []string, page int, carry *types.GuestRecord) ([]types.GuestRecord, *types.GuestRecord) {
	var completed []types.GuestRecord
	current := carry.Clone()
	inTable := current != nil && e.format.ResumeTableOnCarry

	for i, raw := range lines {
		lineNo := i + 1
		line := e.format.Classify(raw)

		switch line.Kind {
		case classifier.Blank, classifier.Unrecognized:
			continue

		case classifier.Malformed:
			e.emit(Diagnostic{
				Kind:    DiagMalformed,
				Page:    page,
				Line:    lineNo,
				Guest:   guestName(current),
				Text:    line.Text,
				Message: line.Err.Error(),
			})

		case classifier.ContinuationMarker:
			if current != nil {
				current.IsSplit = true
			}

		case classifier.GuestHeader:
			next := newRecord(line, page)
			if current != nil {
				if IsComplete(current, e.format.RequiredFields) {
					current.PageEnd = page
					completed = append(completed, e.flush(current, page))
				} else {
					e.abandon(current, next, line.Text, lineNo)
				}
			}
			current = next
			inTable = false

		case classifier.RoomStayHeader:
			if current == nil {
				continue
			}
			if current.IsComplete {
				e.afterTotal(current, line, page, lineNo)
				continue
			}
			fillStay(current, line)

		case classifier.ServiceTableMarker:
			inTable = true

		case classifier.ServiceItem:
			if current == nil {
				e.orphan(line, page, lineNo, "service line without an open guest record; ignored")
				continue
			}
			if current.IsComplete {
				e.afterTotal(current, line, page, lineNo)
				continue
			}
			if !inTable {
				continue
			}
			current.Services = append(current.Services, *line.Service)
			if e.format.AccumulateTotals {
				current.TotalAmount += line.Service.LineTotal
			}

		case classifier.TotalLine:
			if current == nil {
				e.orphan(line, page, lineNo, "total line without an open guest record; ignored")
				continue
			}
			if current.IsComplete {
				e.afterTotal(current, line, page, lineNo)
				continue
			}
			if e.format.TotalRequiresTable && !inTable {
				continue
			}
			current.TotalAmount = line.Amount
			current.IsComplete = true
			inTable = false
		}
	}

	if current == nil {
		return completed, nil
	}

	current.PageEnd = page
	if IsComplete(current, e.format.RequiredFields) {
		return append(completed, e.flush(current, page)), nil
	}

	e.logger.Debug("record carried to next page",
		"page", page,
		"guest", current.DisplayName(),
		"services", len(current.Services),
	)
	return completed, current
}

// flush returns the record value to emit and reports a missing total.
func (e *Engine) flush(rec *types.GuestRecord, page int) types.GuestRecord {
	if !rec.IsComplete {
		e.emit(Diagnostic{
			Kind:    DiagMissingTotal,
			Page:    page,
			Guest:   rec.DisplayName(),
			Message: "record emitted without an explicit total line",
		})
	}
	return *rec
}

// abandon reports an incomplete record replaced by next. When the guest
// is printed again after a continuation marker, next inherits the first
// page and the split flag of the discarded fragment.
func (e *Engine) abandon(rec, next *types.GuestRecord, headerText string, lineNo int) {
	page := next.PageStart
	if rec.IsSplit && sameGuest(rec, next) {
		next.PageStart = rec.PageStart
		next.IsSplit = true
		e.emit(Diagnostic{
			Kind:    DiagRerendered,
			Page:    page,
			Line:    lineNo,
			Guest:   rec.DisplayName(),
			Message: "split guest printed again in full; partial block discarded",
		})
		return
	}
	e.emit(Diagnostic{
		Kind:    DiagAbandoned,
		Page:    page,
		Line:    lineNo,
		Guest:   rec.DisplayName(),
		Text:    headerText,
		Message: "new guest header before the previous record was complete; previous record discarded",
	})
}

func (e *Engine) orphan(line classifier.Line, page, lineNo int, msg string) {
	e.emit(Diagnostic{
		Kind:    DiagOrphan,
		Page:    page,
		Line:    lineNo,
		Text:    line.Text,
		Message: msg,
	})
}

// afterTotal reports a line that would change a record whose total line
// was already consumed.
func (e *Engine) afterTotal(rec *types.GuestRecord, line classifier.Line, page, lineNo int) {
	e.emit(Diagnostic{
		Kind:    DiagAfterTotal,
		Page:    page,
		Line:    lineNo,
		Guest:   rec.DisplayName(),
		Text:    line.Text,
		Message: "line after the total of a completed record; ignored",
	})
}

func (e *Engine) emit(d Diagnostic) {
	e.diagnostics = append(e.diagnostics, d)

	attrs := []any{"kind", string(d.Kind), "page", d.Page}
	if d.Line > 0 {
		attrs = append(attrs, "line", d.Line)
	}
	if d.Guest != "" {
		attrs = append(attrs, "guest", d.Guest)
	}

	switch d.Kind {
	case DiagAbandoned, DiagMalformed, DiagDropped, DiagOrphan, DiagAfterTotal:
		e.logger.Warn(d.Message, attrs...)
	default:
		e.logger.Info(d.Message, attrs...)
	}
}

// =============================================================================
// RECORD HELPERS
// =============================================================================

func newRecord(header classifier.Line, page int) *types.GuestRecord {
	return &types.GuestRecord{
		GuestName:    header.Field(types.FieldName),
		FirstName:    header.Field(types.FieldFirstName),
		LastName:     header.Field(types.FieldLastName),
		GuestID:      header.Field(types.FieldGuestID),
		RoomNumber:   header.Field(types.FieldRoom),
		CheckInDate:  header.Field(types.FieldCheckIn),
		CheckOutDate: header.Field(types.FieldCheckOut),
		Services:     []types.ServiceLine{},
		PageStart:    page,
	}
}

// fillStay populates room and dates that are still unset.
func fillStay(rec *types.GuestRecord, line classifier.Line) {
	if rec.RoomNumber == "" {
		rec.RoomNumber = line.Field(types.FieldRoom)
	}
	if rec.CheckInDate == "" {
		rec.CheckInDate = line.Field(types.FieldCheckIn)
	}
	if rec.CheckOutDate == "" {
		rec.CheckOutDate = line.Field(types.FieldCheckOut)
	}
}

func sameGuest(a, b *types.GuestRecord) bool {
	if a.GuestID != "" || b.GuestID != "" {
		return a.GuestID == b.GuestID
	}
	return a.DisplayName() != "" && a.DisplayName() == b.DisplayName()
}

func guestName(rec *types.GuestRecord) string {
	if rec == nil {
		return ""
	}
	return rec.DisplayName()
}

package reconstruct

import "fmt"

// DiagnosticKind names a recoverable condition met during reconstruction.
type DiagnosticKind string

const (
	// DiagAbandoned: a new guest header arrived while the previous record
	// was still incomplete. The previous record is not emitted.
	DiagAbandoned DiagnosticKind = "abandoned_record"

	// DiagRerendered: like DiagAbandoned, but the abandoned record carried a
	// continuation marker and the new header names the same guest, so the
	// guest is printed again in full.
	DiagRerendered DiagnosticKind = "split_rerendered"

	// DiagMalformed: a service item or total line failed numeric parsing
	// and was skipped.
	DiagMalformed DiagnosticKind = "malformed_line"

	// DiagOrphan: a service or total line with no open record, for example
	// when the previous record was already emitted at the end of the last
	// page.
	DiagOrphan DiagnosticKind = "orphan_service_line"

	// DiagAfterTotal: a stay, service or total line after the record's total
	// line. The completed record is left unchanged.
	DiagAfterTotal DiagnosticKind = "line_after_total"

	// DiagMissingTotal: a record passed the completeness check without an
	// explicit total line; its total is the sum of its service lines.
	DiagMissingTotal DiagnosticKind = "missing_total"

	// DiagSalvaged: a record still open at end of input was emitted.
	DiagSalvaged DiagnosticKind = "dangling_salvaged"

	// DiagDropped: a record still open at end of input had no service lines
	// and was dropped.
	DiagDropped DiagnosticKind = "dangling_dropped"
)

// Diagnostic is one recoverable event. Line is 1-based within Page; it is
// zero for events raised at a page or input boundary.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Page    int            `json:"page"`
	Line    int            `json:"line,omitempty"`
	Guest   string         `json:"guest,omitempty"`
	Text    string         `json:"text,omitempty"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("page %d", d.Page)
	if d.Line > 0 {
		loc = fmt.Sprintf("page %d line %d", d.Page, d.Line)
	}
	if d.Guest != "" {
		return fmt.Sprintf("[%s] %s (%s): %s", d.Kind, loc, d.Guest, d.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Kind, loc, d.Message)
}

// =============================================================================
// Guest Invoice Chunker - Record Writers
// =============================================================================
//
// This package serializes the reconstructed records of one document. Every
// writer receives the same Batch and writes one file:
//
//   json - full result: summary, cross-page analysis, records, metadata
//   csv  - one row per guest, services joined (UTF-8 BOM for Excel)
//   xlsx - "Guests" and "Services" sheets
//   xml  - <guests><guest n="1">...<service n="1">...</service></guest></guests>
//
// Totals are written rounded to two decimals. Service order is preserved.
//
// =============================================================================

package writer

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/reconstruct"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/report"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// Batch is everything a writer may serialize for one document.
type Batch struct {
	RunID       string
	Source      string
	Format      string
	Pages       int
	Records     []types.GuestRecord
	Diagnostics []reconstruct.Diagnostic
	Summary     report.Summary
	GeneratedAt time.Time
}

// NewBatch builds a batch from a reconstruction result.
func NewBatch(runID, source, format string, res reconstruct.Result) *Batch {
	return &Batch{
		RunID:       runID,
		Source:      source,
		Format:      format,
		Pages:       res.PagesProcessed,
		Records:     res.Records,
		Diagnostics: res.Diagnostics,
		Summary:     report.Summarize(res.Records),
		GeneratedAt: time.Now(),
	}
}

// Writer serializes a batch.
type Writer interface {
	// Name is the output format name used in config (json, csv, ...).
	Name() string

	// Extension is the file extension including the dot.
	Extension() string

	Write(w io.Writer, b *Batch) error
}

var registry = map[string]func() Writer{
	"json": func() Writer { return JSONWriter{Indent: "  "} },
	"csv":  func() Writer { return CSVWriter{BOM: true} },
	"xlsx": func() Writer { return XLSXWriter{} },
	"xml":  func() Writer { return NewXMLWriter() },
}

// New returns the writer registered under name.
func New(name string) (Writer, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", name)
	}
	return f(), nil
}

// Names returns the registered output format names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

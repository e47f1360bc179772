package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/reconstruct"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/report"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// ChunkingStrategy identifies the reconstruction method in JSON metadata.
const ChunkingStrategy = "cross_page_reconstruction"

// JSONWriter writes the complete result document.
type JSONWriter struct {
	Indent string
}

// Document is the JSON output layout.
type Document struct {
	ExtractionSummary ExtractionSummary        `json:"extraction_summary"`
	CrossPageAnalysis CrossPageAnalysis        `json:"cross_page_analysis"`
	GuestRecords      []types.GuestRecord      `json:"guest_records"`
	Diagnostics       []reconstruct.Diagnostic `json:"diagnostics"`
	ChunkingMetadata  ChunkingMetadata         `json:"chunking_metadata"`
}

type ExtractionSummary struct {
	TotalGuests         int     `json:"total_guests"`
	CompleteGuests      int     `json:"complete_guests"`
	CrossPageGuests     int     `json:"cross_page_guests"`
	TotalRevenue        float64 `json:"total_revenue"`
	AvgServicesPerGuest float64 `json:"avg_services_per_guest"`
	ExtractionTimestamp string  `json:"extraction_timestamp"`
}

type CrossPageAnalysis struct {
	CrossPageRate    string                   `json:"cross_page_rate"`
	CrossPageDetails []report.CrossPageDetail `json:"cross_page_details"`
}

type ChunkingMetadata struct {
	ChunkingStrategy string `json:"chunking_strategy"`
	Source           string `json:"pdf_source"`
	Format           string `json:"format"`
	PagesProcessed   int    `json:"pages_processed"`
	RunID            string `json:"run_id"`
}

func (JSONWriter) Name() string      { return "json" }
func (JSONWriter) Extension() string { return ".json" }

func (j JSONWriter) Write(w io.Writer, b *Batch) error {
	enc := json.NewEncoder(w)
	if j.Indent != "" {
		enc.SetIndent("", j.Indent)
	}
	if err := enc.Encode(BuildDocument(b)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// BuildDocument converts a batch into the JSON layout. Totals are rounded
// to two decimals; records and diagnostics are never null.
func BuildDocument(b *Batch) Document {
	records := make([]types.GuestRecord, len(b.Records))
	for i, r := range b.Records {
		records[i] = *r.Clone()
		records[i].TotalAmount = r.RoundedTotal()
	}
	diagnostics := b.Diagnostics
	if diagnostics == nil {
		diagnostics = []reconstruct.Diagnostic{}
	}

	return Document{
		ExtractionSummary: ExtractionSummary{
			TotalGuests:         b.Summary.TotalGuests,
			CompleteGuests:      b.Summary.CompleteGuests,
			CrossPageGuests:     b.Summary.CrossPageGuests,
			TotalRevenue:        b.Summary.TotalRevenue,
			AvgServicesPerGuest: b.Summary.AvgServicesPerGuest,
			ExtractionTimestamp: b.GeneratedAt.Format(time.RFC3339),
		},
		CrossPageAnalysis: CrossPageAnalysis{
			CrossPageRate:    b.Summary.CrossPageRate,
			CrossPageDetails: b.Summary.CrossPageDetails,
		},
		GuestRecords: records,
		Diagnostics:  diagnostics,
		ChunkingMetadata: ChunkingMetadata{
			ChunkingStrategy: ChunkingStrategy,
			Source:           filepath.Base(b.Source),
			Format:           b.Format,
			PagesProcessed:   b.Pages,
			RunID:            b.RunID,
		},
	}
}

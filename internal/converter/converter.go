// =============================================================================
// Guest Invoice Chunker - Converter Module
// =============================================================================
//
// This module orchestrates the processing of a single invoice document, from
// page extraction to the written record files.
//
// PROCESSING PIPELINE:
//   1. Compile the selected format profile
//   2. Open the document and extract its pages
//   3. Reconstruct guest records across page boundaries
//   4. Audit the records
//   5. Write every configured output format
//   6. Save the run to the record store (optional)
//   7. Archive the processed document and outputs (optional)
//
// CONCURRENCY:
//   Each document is processed by its own Converter. Pages within one
//   document are always processed in order on a single goroutine.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/classifier"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/reconstruct"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/store"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/validation"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/writer"
	"github.com/ginjaninja78/guest-invoice-chunker/pkg/utils"
)

// ErrValidationFailed is returned when the audit finds errors and
// continue_on_error is off.
var ErrValidationFailed = errors.New("validation failed")

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of processing a single document.
type Result struct {
	// FilePath is the path to the input document that was processed.
	FilePath string

	// RunID identifies this run in output names and the record store.
	RunID string

	// Format is the name of the format profile used.
	Format string

	// OutputFiles are the written files, one per output format.
	// This is empty if processing failed or on a dry run.
	OutputFiles []string

	// ArchivePath is where the input was moved, if archiving is enabled.
	ArchivePath string

	// Success indicates whether the processing was successful.
	Success bool

	// Error contains the error if processing failed.
	Error error

	// Records and Diagnostics are kept for reporting.
	Records     []types.GuestRecord
	Diagnostics []reconstruct.Diagnostic

	// Findings are the audit findings, warnings included.
	Findings []*validation.ValidationError

	// Stats contains processing statistics.
	Stats ProcessingStats
}

// ProcessingStats contains statistics about the processing.
type ProcessingStats struct {
	PagesProcessed  int
	Guests          int
	CompleteGuests  int
	CrossPageGuests int
	Services        int
	Diagnostics     int

	// ValidationErrors counts audit errors; warnings are not included.
	ValidationErrors   int
	ValidationWarnings int

	// Truncated is set when the run was cancelled part way through.
	Truncated bool

	ProcessingTime time.Duration
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options configures a Converter.
type Options struct {
	// Config is the main application configuration.
	Config *config.MainConfig

	// Format is the selected format profile.
	Format *config.FormatConfig

	// Store persists the run when not nil.
	Store *store.Store

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// DryRun reconstructs and audits but writes, stores and archives nothing.
	DryRun bool

	// Runner overrides the pdftotext runner.
	Runner pagesource.Runner
}

// Converter handles the processing of a single invoice document.
type Converter struct {
	path   string
	opts   Options
	fm     *utils.FileManager
	logger *slog.Logger
}

// New creates a new Converter instance.
//
// PARAMETERS:
//   - path: The input document (PDF, text dump or page directory).
//   - opts: Configuration, format profile and collaborators.
func New(path string, opts Options) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cfg := opts.Config
	fm := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir, cfg.OutputArchiveDir)
	fm.ArchiveOnSuccess = cfg.ArchiveInputs

	return &Converter{
		path:   path,
		opts:   opts,
		fm:     fm,
		logger: logger.With("file", filepath.Base(path)),
	}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the processing pipeline for the document.
//
// RETURNS:
//   - A Result struct containing the outcome. Run never panics on bad
//     input; every failure is reported through Result.Error.
func (c *Converter) Run(ctx context.Context) (result Result) {
	startTime := time.Now()
	result = Result{
		FilePath: c.path,
		RunID:    uuid.New().String(),
	}
	defer func() { result.Stats.ProcessingTime = time.Since(startTime) }()

	cfg := c.opts.Config

	// =========================================================================
	// STEP 1: COMPILE FORMAT
	// =========================================================================

	if c.opts.Format == nil {
		result.Error = errors.New("no format profile selected")
		return result
	}
	result.Format = c.opts.Format.Name

	format, err := classifier.Compile(c.opts.Format)
	if err != nil {
		result.Error = fmt.Errorf("failed to compile format: %w", err)
		return result
	}

	c.logger.Info("processing document", "format", format.Name, "run_id", result.RunID)

	// =========================================================================
	// STEP 2 + 3: EXTRACT PAGES AND RECONSTRUCT
	// =========================================================================

	src, err := pagesource.Open(c.path, pagesource.Options{
		PdftotextPath: cfg.PdftotextPath,
		Runner:        c.opts.Runner,
		Logger:        c.logger,
	})
	if err != nil {
		result.Error = fmt.Errorf("failed to open document: %w", err)
		return result
	}

	res, audit, err := Reconstruct(ctx, src, format, c.logger)
	c.collect(&result, res, audit)
	if err != nil {
		result.Error = fmt.Errorf("failed to reconstruct records: %w", err)
		return result
	}

	// =========================================================================
	// STEP 4: AUDIT
	// =========================================================================

	for _, f := range audit.Errors {
		if f.Severity == validation.SeverityError {
			c.logger.Warn("validation error", "rule", f.Rule, "guest", f.Guest, "message", f.Message)
		} else {
			c.logger.Debug("validation warning", "rule", f.Rule, "guest", f.Guest, "message", f.Message)
		}
	}
	if !audit.IsValid && !cfg.ContinueOnError {
		result.Error = fmt.Errorf("%w with %d errors", ErrValidationFailed, audit.ErrorCount)
		return result
	}

	if c.opts.DryRun {
		result.Success = true
		return result
	}

	// =========================================================================
	// STEP 5: WRITE OUTPUTS
	// =========================================================================

	batch := writer.NewBatch(result.RunID, c.path, format.Name, res)

	outputs, err := c.writeOutputs(batch)
	result.OutputFiles = outputs
	if err != nil {
		result.Error = fmt.Errorf("failed to write output: %w", err)
		return result
	}

	// =========================================================================
	// STEP 6: STORE
	// =========================================================================

	if c.opts.Store != nil {
		run := store.Run{
			ID:     result.RunID,
			Source: filepath.Base(c.path),
			Format: format.Name,
			Pages:  res.PagesProcessed,
		}
		if err := c.opts.Store.SaveRun(ctx, run, res.Records); err != nil {
			result.Error = fmt.Errorf("failed to store records: %w", err)
			return result
		}
	}

	// =========================================================================
	// STEP 7: ARCHIVE
	// =========================================================================

	if err := c.archiveFiles(&result); err != nil {
		// Archive failures do not fail the document.
		c.logger.Warn("failed to archive files", "error", err)
	}

	result.Success = true
	c.logger.Info("document processed",
		"guests", result.Stats.Guests,
		"cross_page", result.Stats.CrossPageGuests,
		"diagnostics", result.Stats.Diagnostics,
		"outputs", len(result.OutputFiles))

	return result
}

// Reconstruct runs reconstruction and the audit on one page source. It is
// shared by the file pipeline and the HTTP API.
func Reconstruct(ctx context.Context, src pagesource.Source, format *classifier.Format, logger *slog.Logger) (reconstruct.Result, *validation.ValidationResult, error) {
	engine := reconstruct.New(format, logger)
	res, err := engine.ReconstructSource(ctx, src)
	audit := validation.NewValidator(format.RequiredFields).ValidateAll(res.Records)
	return res, audit, err
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (c *Converter) collect(result *Result, res reconstruct.Result, audit *validation.ValidationResult) {
	result.Records = res.Records
	result.Diagnostics = res.Diagnostics
	result.Findings = audit.Errors

	result.Stats.PagesProcessed = res.PagesProcessed
	result.Stats.Guests = len(res.Records)
	result.Stats.Diagnostics = len(res.Diagnostics)
	result.Stats.Truncated = res.Truncated
	result.Stats.ValidationErrors = audit.ErrorCount
	result.Stats.ValidationWarnings = audit.WarningCount
	for i := range res.Records {
		r := &res.Records[i]
		result.Stats.Services += len(r.Services)
		if r.IsComplete {
			result.Stats.CompleteGuests++
		}
		if r.SpansPages() {
			result.Stats.CrossPageGuests++
		}
	}
}

// writeOutputs writes one file per configured output format.
//
// RETURNS:
//   - The paths written so far, also on error.
func (c *Converter) writeOutputs(batch *writer.Batch) ([]string, error) {
	cfg := c.opts.Config

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	params := map[string]string{
		"uuid":   batch.RunID,
		"source": utils.SourceBaseName(c.path),
		"format": batch.Format,
	}

	var written []string
	for _, name := range cfg.OutputFormats {
		w, err := writer.New(name)
		if err != nil {
			return written, err
		}

		outputPath := filepath.Join(cfg.OutputDir, utils.GenerateOutputFileName(cfg.FileNameFormat, params, w.Extension()))
		if err := writeFile(outputPath, w, batch); err != nil {
			return written, err
		}

		c.logger.Debug("wrote output", "format", name, "path", outputPath)
		written = append(written, outputPath)
	}

	return written, nil
}

func writeFile(path string, w writer.Writer, batch *writer.Batch) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.Write(file, batch); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

// archiveFiles moves the input and copies the outputs to the archive
// directories when archiving is enabled.
func (c *Converter) archiveFiles(result *Result) error {
	if !c.fm.ArchiveOnSuccess {
		return nil
	}

	for _, out := range result.OutputFiles {
		if _, err := c.fm.ArchiveOutputFile(out); err != nil {
			return err
		}
	}

	archived, err := c.fm.ArchiveInputFile(c.path)
	if err != nil {
		return err
	}
	result.ArchivePath = archived
	return nil
}

// =============================================================================
// ERROR LOG CONVERSION
// =============================================================================

// LogEntries converts the failure, diagnostics and audit errors of a result
// into error log entries. Audit warnings are left out.
func (r Result) LogEntries() []utils.ErrorLogEntry {
	now := time.Now()
	name := filepath.Base(r.FilePath)

	var entries []utils.ErrorLogEntry
	if r.Error != nil {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    now,
			FileName:     name,
			ErrorType:    "processing",
			ErrorMessage: r.Error.Error(),
		})
	}
	for _, d := range r.Diagnostics {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    now,
			FileName:     name,
			ErrorType:    string(d.Kind),
			ErrorMessage: d.Message,
			Guest:        d.Guest,
			FieldValue:   d.Text,
			Page:         d.Page,
		})
	}
	for _, f := range r.Findings {
		if f.Severity != validation.SeverityError {
			continue
		}
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp:    now,
			FileName:     name,
			ErrorType:    "validation_" + f.Rule,
			ErrorMessage: f.Message,
			Guest:        f.Guest,
			FieldName:    f.Field,
			FieldValue:   f.Value,
			Page:         f.PageStart,
		})
	}
	return entries
}

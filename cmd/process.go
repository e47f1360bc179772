// =============================================================================
// Guest Invoice Chunker - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command for rebuilding
// guest records from invoice documents.
//
// COMMAND USAGE:
//   chunker process [flags]
//
// FLAGS:
//   --dry-run : Reconstruct and audit without writing outputs
//   --file    : Process only this document
//   --format  : Use this format profile instead of pattern matching
//
// PROCESSING PIPELINE:
//   1. Load configuration and format profiles
//   2. Discover documents in the input directory
//   3. For each document (concurrently, bounded by max_concurrency):
//      a. Select the format profile
//      b. Read the pages
//      c. Rebuild guest records page by page
//      d. Audit the records
//      e. Write the output files and store the run
//      f. Archive the input
//   4. Write the summary and error logs
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/converter"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/store"
	"github.com/ginjaninja78/guest-invoice-chunker/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// dryRun reconstructs and audits without writing anything.
var dryRun bool

// filePath restricts processing to a single document.
var filePath string

// formatName forces a format profile.
var formatName string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Rebuild guest records from invoice documents",
	Long: `The process command scans the input directory for invoice documents
(.pdf files, .txt page dumps and directories of page files), selects a format
profile for each one and rebuilds one record per guest.

Documents are processed concurrently. Pages within a document are always
processed in order, so a guest block that continues on the next page is
carried forward and completed there.

On success:
  - One output file per configured output format is written
  - The run is saved to the record store, if one is configured
  - The input is archived, if archive_inputs is set

On error:
  - The error is recorded in the run's error log
  - The input stays in the input directory
  - Processing continues for other documents`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Reconstruct and audit without writing outputs, storing or archiving",
	)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a single document to process",
	)

	processCmd.Flags().StringVar(
		&formatName,
		"format",
		"",
		"Format profile to use for every document",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runProcess orchestrates the reconstruction pipeline.
func runProcess(ctx context.Context) error {
	startTime := time.Now()

	fmt.Println("=== Guest Invoice Chunker ===")
	fmt.Println("Loading configuration...")

	a, err := loadApp()
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d format profile(s)\n", len(a.formats))

	fm := utils.NewFileManager(a.cfg.InputDir, a.cfg.OutputDir, a.cfg.InputArchiveDir, a.cfg.OutputArchiveDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	// =========================================================================
	// DISCOVER INPUT FILES
	// =========================================================================

	var inputFiles []string
	if filePath != "" {
		if !pagesource.IsDocument(filePath) {
			return fmt.Errorf("%s is not a supported document", filePath)
		}
		inputFiles = []string{filePath}
	} else {
		fmt.Println("Discovering input files...")
		inputFiles, err = fm.DiscoverInputFiles()
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(inputFiles) == 0 {
		fmt.Println("No documents found in the input directory.")
		return nil
	}
	fmt.Printf("Found %d document(s) to process\n", len(inputFiles))

	var st *store.Store
	if !dryRun {
		st, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}
	}

	// =========================================================================
	// PROCESS FILES CONCURRENTLY
	// =========================================================================

	fmt.Println("Processing documents...")
	results := a.processAll(ctx, inputFiles, formatName, st, dryRun)

	// =========================================================================
	// COLLECT RESULTS AND GENERATE SUMMARY
	// =========================================================================

	summary := buildSummary(results, startTime)
	for _, result := range results {
		printResult(result)
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total documents: %d\n", summary.TotalFiles)
	fmt.Printf("Successful:      %d\n", summary.SuccessfulFiles)
	fmt.Printf("Errors:          %d\n", summary.FailedFiles)
	fmt.Printf("Guests:          %d (%d across pages)\n", summary.TotalGuests, summary.CrossPageGuests)
	fmt.Printf("Time elapsed:    %s\n", summary.EndTime.Sub(summary.StartTime))

	if dryRun {
		return ctx.Err()
	}

	summaryPath, err := utils.WriteSummaryLog(summary, a.cfg.OutputDir)
	if err != nil {
		a.logger.Error("failed to write summary log", "error", err)
	} else {
		fmt.Printf("Summary:         %s\n", summaryPath)
	}

	var entries []utils.ErrorLogEntry
	for _, result := range results {
		entries = append(entries, result.LogEntries()...)
	}
	if len(entries) > 0 {
		logPath, err := utils.WriteErrorLog(entries, a.cfg.OutputDir)
		if err != nil {
			a.logger.Error("failed to write error log", "error", err)
		} else {
			fmt.Printf("\nErrors have been logged to %s\n", logPath)
		}
	}

	return ctx.Err()
}

// processAll runs one converter per document with at most max_concurrency
// in flight. Results keep the order of files.
func (a *app) processAll(ctx context.Context, files []string, format string, st *store.Store, dry bool) []converter.Result {
	results := make([]converter.Result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.MaxConcurrency, 1))
	for i, file := range files {
		g.Go(func() error {
			results[i] = a.processFile(gctx, file, format, st, dry)
			return nil
		})
	}
	g.Wait()

	return results
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func printResult(result converter.Result) {
	name := filepath.Base(result.FilePath)
	if !result.Success {
		fmt.Printf("  ✗ %s: %v\n", name, result.Error)
		return
	}

	outputs := make([]string, len(result.OutputFiles))
	for i, out := range result.OutputFiles {
		outputs[i] = filepath.Base(out)
	}
	target := strings.Join(outputs, ", ")
	if target == "" {
		target = "(dry run)"
	}
	fmt.Printf("  ✓ %s [%s] %d guest(s), %d page(s) -> %s\n",
		name, result.Format, result.Stats.Guests, result.Stats.PagesProcessed, target)
}

// buildSummary aggregates per-document results into a ProcessingSummary.
func buildSummary(results []converter.Result, startTime time.Time) utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		StartTime:  startTime,
		EndTime:    time.Now(),
		TotalFiles: len(results),
	}

	for _, r := range results {
		summary.TotalPages += r.Stats.PagesProcessed
		summary.Diagnostics += r.Stats.Diagnostics
		summary.ValidationErrors += r.Stats.ValidationErrors

		if !r.Success {
			summary.FailedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    r.FilePath,
				ErrorMessage: fmt.Sprint(r.Error),
				ErrorType:    errorType(r.Error),
			})
			continue
		}

		summary.SuccessfulFiles++
		summary.TotalGuests += r.Stats.Guests
		summary.CrossPageGuests += r.Stats.CrossPageGuests
		summary.TotalServices += r.Stats.Services
		summary.ProcessedFiles = append(summary.ProcessedFiles, utils.ProcessedFileInfo{
			InputFile:       r.FilePath,
			OutputFiles:     r.OutputFiles,
			ArchivePath:     r.ArchivePath,
			RunID:           r.RunID,
			Format:          r.Format,
			Pages:           r.Stats.PagesProcessed,
			Guests:          r.Stats.Guests,
			CrossPageGuests: r.Stats.CrossPageGuests,
			ProcessTime:     r.Stats.ProcessingTime,
		})
	}

	return summary
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrUnknownFormat):
		return "format"
	case errors.Is(err, converter.ErrValidationFailed):
		return "validation"
	case errors.Is(err, pagesource.ErrSourceUnavailable):
		return "source"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "processing"
	}
}

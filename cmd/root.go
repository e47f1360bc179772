// =============================================================================
// Guest Invoice Chunker - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (chunker)
//   ├── processCmd  (chunker process)
//   ├── validateCmd (chunker validate)
//   ├── serveCmd    (chunker serve)
//   ├── watchCmd    (chunker watch)
//   └── versionCmd  (chunker version)
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/converter"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/store"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "chunker",
	Short: "Guest Invoice Chunker - Rebuild guest records split across invoice pages",
	Long: `Guest Invoice Chunker reads multi-page hotel invoice documents and rebuilds
one complete record per guest, even when a guest's block is split across a
page break.

Key Features:
  - Format profiles (YAML) describing each invoice layout
  - Cross-page carry of incomplete guest records
  - Audit of the rebuilt records with detailed error logs
  - JSON, CSV, XLSX and XML output
  - Concurrent processing of many documents
  - HTTP API and directory watch mode

Example Usage:
  chunker process                        # Process every document in the input directory
  chunker process --file invoice.pdf     # Process a single document
  chunker validate                       # Check configuration and format profiles
  chunker serve                          # Start the HTTP API`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultConfigFile,
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// app holds what every command needs after configuration is loaded.
type app struct {
	cfg     *config.MainConfig
	formats map[string]*config.FormatConfig
	logger  *slog.Logger
}

// loadApp loads the main configuration and the format profiles and builds
// the logger.
func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	formats, err := config.LoadFormatConfigs(cfg.FormatsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load format profiles: %w", err)
	}

	return &app{
		cfg:     cfg,
		formats: formats,
		logger:  newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr),
	}, nil
}

// newLogger builds a slog logger for the configured level and format.
func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the record store, or returns nil when it is disabled.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if !a.cfg.Store.Enabled() {
		return nil, nil
	}
	st, err := store.Open(ctx, a.cfg.Store.Driver, a.cfg.Store.DSN, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	return st, nil
}

// processFile selects the format profile for path and runs a converter.
func (a *app) processFile(ctx context.Context, path, formatName string, st *store.Store, dryRun bool) converter.Result {
	fc, err := config.SelectFormat(a.formats, formatName, path, a.cfg.DefaultFormat)
	if err != nil {
		return converter.Result{FilePath: path, Error: err}
	}

	return converter.New(path, converter.Options{
		Config: a.cfg,
		Format: fc,
		Store:  st,
		Logger: a.logger,
		DryRun: dryRun,
	}).Run(ctx)
}

// =============================================================================
// Guest Invoice Chunker - Watch Command
// =============================================================================
//
// COMMAND USAGE:
//   chunker watch
//
// Watches the input directory and processes every document that appears,
// once its writes have settled. Stops on SIGINT or SIGTERM.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/watch"
	"github.com/ginjaninja78/guest-invoice-chunker/pkg/utils"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process documents as they arrive in the input directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&formatName, "format", "", "Format profile to use for every document")
}

func runWatch(ctx context.Context) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	fm := utils.NewFileManager(a.cfg.InputDir, a.cfg.OutputDir, a.cfg.InputArchiveDir, a.cfg.OutputArchiveDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	handler := func(ctx context.Context, path string) {
		result := a.processFile(ctx, path, formatName, st, false)
		printResult(result)
		if entries := result.LogEntries(); len(entries) > 0 {
			if logPath, err := utils.WriteErrorLog(entries, a.cfg.OutputDir); err != nil {
				a.logger.Error("failed to write error log", "error", err)
			} else {
				fmt.Printf("    errors logged to %s\n", logPath)
			}
		}
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.cfg.InputDir)
	return watch.New(watch.Config{
		Dir:         a.cfg.InputDir,
		Debounce:    a.cfg.Watch.Debounce,
		InitialScan: a.cfg.Watch.InitialScan,
	}, handler, a.logger).Run(ctx)
}

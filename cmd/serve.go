// =============================================================================
// Guest Invoice Chunker - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   chunker serve [--addr :8080]
//
// Starts the HTTP API. See internal/server for the routes.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve starts an HTTP API that rebuilds guest records from page text
posted to POST /api/v1/reconstruct. When a record store is configured, runs
are saved and can be listed under /api/v1/runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(ctx context.Context) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		a.cfg.Server.Addr = serveAddr
	}
	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	srv, err := server.New(a.cfg.Server, a.formats, a.cfg.DefaultFormat, st, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("Listening on %s\n", a.cfg.Server.Addr)
	return srv.Run(ctx)
}

// =============================================================================
// Guest Invoice Chunker - Main Entry Point
// =============================================================================
//
// This is the main entry point for the Guest Invoice Chunker CLI. It hands
// control to the Cobra commands in the cmd package.
//
// USAGE:
//   chunker process   - Rebuild guest records from every document in the input directory
//   chunker validate  - Check configuration and format profiles, optionally audit documents
//   chunker serve     - Start the HTTP API
//   chunker watch     - Process documents as they arrive
//   chunker version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Page sources, line classification, reconstruction,
//                      audit, writers, store, HTTP API and watcher
//   - pkg/           : Shared file management utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/guest-invoice-chunker/cmd"
)

func main() {
	cmd.Execute()
}

// =============================================================================
// Guest Invoice Chunker - Version Command
// =============================================================================
//
// COMMAND USAGE:
//   chunker version
//
// OUTPUT:
//   Guest Invoice Chunker
//   Version:    1.0.0
//   Build Date: 2024-11-05
//   Go Version: go1.24.0
//   Formats:    guest_id, stay_line
//   Outputs:    csv, json, xlsx, xml
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/writer"
)

// Version and BuildDate are set at build time using ldflags:
//
//	go build -ldflags "-X 'github.com/ginjaninja78/guest-invoice-chunker/cmd.Version=1.0.0'"
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, Go runtime version and the builtin format profiles.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Guest Invoice Chunker")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		if formats, err := config.BuiltinFormats(); err == nil {
			fmt.Printf("Formats:    %s\n", strings.Join(config.FormatNames(formats), ", "))
		}
		fmt.Printf("Outputs:    %s\n", strings.Join(writer.Names(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

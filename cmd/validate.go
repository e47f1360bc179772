// =============================================================================
// Guest Invoice Chunker - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   chunker validate [document...] [flags]
//
// Without arguments the command checks the main configuration and compiles
// every format profile. With documents it also rebuilds their records and
// prints the audit, without writing any output.
//
// FLAGS:
//   --format : Use this format profile for every document
//   --strict : Treat audit warnings as errors
//   --log    : Write the audit findings to this file
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/classifier"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/reconstruct"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/validation"
)

var (
	validateFormat string
	strict         bool
	validateLog    string
)

var validateCmd = &cobra.Command{
	Use:   "validate [document...]",
	Short: "Check configuration, format profiles and optionally documents",
	Long: `Validate loads the main configuration and compiles every format profile,
reporting any profile that fails to compile.

When documents are given, their guest records are rebuilt and audited and the
findings are printed. Nothing is written, stored or archived.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.Context(), args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFormat, "format", "", "Format profile to use for every document")
	validateCmd.Flags().BoolVar(&strict, "strict", false, "Treat audit warnings as errors")
	validateCmd.Flags().StringVar(&validateLog, "log", "", "Write audit findings to this file")
}

func runValidate(ctx context.Context, documents []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	fmt.Printf("Main configuration OK (%s)\n", cfgFile)

	compiled, failed := compileFormats(a.formats)
	if failed > 0 {
		return fmt.Errorf("%d format profile(s) failed to compile", failed)
	}
	if len(documents) == 0 {
		return nil
	}

	var findings []*validation.ValidationError
	invalid := 0
	for _, doc := range documents {
		fc, err := config.SelectFormat(a.formats, validateFormat, doc, a.cfg.DefaultFormat)
		if err != nil {
			return err
		}
		format := compiled[fc.Name]

		src, err := pagesource.Open(doc, pagesource.Options{PdftotextPath: a.cfg.PdftotextPath})
		if err != nil {
			return err
		}
		res, err := reconstruct.New(format, a.logger).ReconstructSource(ctx, src)
		if err != nil {
			return fmt.Errorf("failed to reconstruct %s: %w", doc, err)
		}

		audit := validation.NewValidatorWithOptions(format.RequiredFields, validation.ValidationOptions{
			TreatWarningsAsErrors: strict,
		}).ValidateAll(res.Records)

		status := "✓"
		if !audit.IsValid {
			status = "✗"
			invalid++
		}
		fmt.Printf("\n%s %s [%s] %d guest(s), %d diagnostic(s)\n", status, doc, fc.Name, len(res.Records), len(res.Diagnostics))
		for _, d := range res.Diagnostics {
			fmt.Printf("    %s\n", d)
		}
		fmt.Println(validation.FormatErrors(audit.Errors))
		findings = append(findings, audit.Errors...)
	}

	if validateLog != "" {
		if err := validation.WriteErrorLog(findings, validateLog); err != nil {
			return err
		}
		fmt.Printf("Findings written to %s\n", validateLog)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d document(s) failed validation", invalid, len(documents))
	}
	return nil
}

// compileFormats compiles every profile and prints its status.
func compileFormats(formats map[string]*config.FormatConfig) (map[string]*classifier.Format, int) {
	compiled := make(map[string]*classifier.Format, len(formats))
	failed := 0
	for _, name := range config.FormatNames(formats) {
		format, err := classifier.Compile(formats[name])
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Printf("  ✓ %s (%s)\n", name, formats[name].Description)
		compiled[name] = format
	}
	return compiled, failed
}

// =============================================================================
// Guest Invoice Chunker - Record Audit
// =============================================================================
//
// This module audits the reconstructed guest records before they are
// written. It never modifies a record; it only reports findings.
//
// RULES:
//   - required   (error):   a required identity field is empty
//   - page_order (error):   PageStart is after PageEnd
//   - incomplete (warning): the record was emitted without an explicit total
//   - line_total (warning): quantity * unit price differs from the line total
//   - total_sum  (warning): the explicit total differs from the services sum
//
// ERROR HANDLING:
//   - Findings are collected, not returned as Go errors
//   - Each finding carries the guest, field, value and page range
//   - Warnings can be promoted to errors with TreatWarningsAsErrors
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule names.
const (
	RuleRequired   = "required"
	RulePageOrder  = "page_order"
	RuleIncomplete = "incomplete"
	RuleLineTotal  = "line_total"
	RuleTotalSum   = "total_sum"
)

// tolerance is the largest monetary difference accepted as rounding noise.
const tolerance = 0.01

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// ValidationError represents a single audit finding.
type ValidationError struct {
	// Severity is "error" or "warning".
	Severity string `json:"severity"`

	// Guest is the display name of the record.
	Guest string `json:"guest"`

	// Field is the canonical field that failed, if any.
	Field string `json:"field,omitempty"`

	// Value is the offending value.
	Value string `json:"value,omitempty"`

	// Rule is the rule that was violated.
	Rule string `json:"rule"`

	// Message is a human-readable description.
	Message string `json:"message"`

	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`

	// ServiceIndex is the 1-based service line, or 0 for record-level findings.
	ServiceIndex int `json:"service_index,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Guest '%s' (pages %d-%d)", strings.ToUpper(e.Severity), e.Guest, e.PageStart, e.PageEnd)
	if e.ServiceIndex > 0 {
		fmt.Fprintf(&b, ", Service %d", e.ServiceIndex)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ", Field '%s'", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Value != "" {
		fmt.Fprintf(&b, " (value: '%s')", e.Value)
	}
	return b.String()
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of an audit.
type ValidationResult struct {
	// IsValid is true if there are no errors (after warning promotion).
	IsValid bool

	// Errors contains all findings including warnings.
	Errors []*ValidationError

	ErrorCount   int
	WarningCount int

	RecordsValidated int
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for the audit.
type ValidationOptions struct {
	// StopOnFirstError stops after the first error.
	// Default: false
	StopOnFirstError bool

	// TreatWarningsAsErrors makes any warning invalidate the result.
	// Default: false
	TreatWarningsAsErrors bool
}

// Validator audits guest records against a list of required fields.
type Validator struct {
	required []string
	options  ValidationOptions
}

// NewValidator creates a Validator with default options.
func NewValidator(required []string) *Validator {
	return &Validator{required: required}
}

// NewValidatorWithOptions creates a Validator with custom options.
func NewValidatorWithOptions(required []string, options ValidationOptions) *Validator {
	return &Validator{required: required, options: options}
}

// Validate audits all records with default options and returns the findings.
func Validate(records []types.GuestRecord, required []string) []*ValidationError {
	return NewValidator(required).ValidateAll(records).Errors
}

// ValidateAll audits all records and returns a detailed result.
func (v *Validator) ValidateAll(records []types.GuestRecord) *ValidationResult {
	result := &ValidationResult{
		IsValid:          true,
		Errors:           make([]*ValidationError, 0),
		RecordsValidated: len(records),
	}

	for i := range records {
		for _, err := range v.ValidateRecord(&records[i]) {
			result.Errors = append(result.Errors, err)

			if err.Severity == SeverityError {
				result.ErrorCount++
				result.IsValid = false

				if v.options.StopOnFirstError {
					return result
				}
			} else {
				result.WarningCount++

				if v.options.TreatWarningsAsErrors {
					result.IsValid = false
				}
			}
		}
	}

	return result
}

// ValidateRecord audits a single record.
func (v *Validator) ValidateRecord(r *types.GuestRecord) []*ValidationError {
	var errors []*ValidationError

	newError := func(severity, rule, field, value, message string) *ValidationError {
		return &ValidationError{
			Severity:  severity,
			Guest:     r.DisplayName(),
			Field:     field,
			Value:     value,
			Rule:      rule,
			Message:   message,
			PageStart: r.PageStart,
			PageEnd:   r.PageEnd,
		}
	}

	// =========================================================================
	// REQUIRED FIELDS
	// =========================================================================

	for _, field := range v.required {
		if field == types.FieldTotalLine {
			continue
		}
		if r.Field(field) == "" {
			errors = append(errors, newError(SeverityError, RuleRequired, field, "",
				fmt.Sprintf("Required field '%s' is empty", field)))
		}
	}

	// =========================================================================
	// PAGE RANGE
	// =========================================================================

	if r.PageStart > r.PageEnd {
		errors = append(errors, newError(SeverityError, RulePageOrder, "", fmt.Sprintf("%d-%d", r.PageStart, r.PageEnd),
			"Record starts after it ends"))
	}

	// =========================================================================
	// COMPLETENESS
	// =========================================================================

	if !r.IsComplete {
		errors = append(errors, newError(SeverityWarning, RuleIncomplete, "", "",
			"Record was emitted without an explicit total line"))
	}

	// =========================================================================
	// ARITHMETIC
	// =========================================================================

	for i, s := range r.Services {
		expected := float64(s.Quantity) * s.UnitPrice
		if math.Abs(expected-s.LineTotal) > tolerance {
			e := newError(SeverityWarning, RuleLineTotal, types.FieldLineTotal, fmt.Sprintf("%.2f", s.LineTotal),
				fmt.Sprintf("%s: %d x %.2f = %.2f", s.Description, s.Quantity, s.UnitPrice, expected))
			e.ServiceIndex = i + 1
			errors = append(errors, e)
		}
	}

	if r.IsComplete && len(r.Services) > 0 {
		sum := r.ServicesTotal()
		if math.Abs(sum-r.TotalAmount) > tolerance {
			errors = append(errors, newError(SeverityWarning, RuleTotalSum, types.FieldAmount, fmt.Sprintf("%.2f", r.TotalAmount),
				fmt.Sprintf("Total differs from the sum of services (%.2f)", sum)))
		}
	}

	return errors
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats findings for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))

	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}

	return builder.String()
}

// WriteErrorLog writes findings to a log file.
//
// PARAMETERS:
//   - errors: The findings to write.
//   - filePath: The path to the output file.
//
// RETURNS:
//   - An error if writing fails.
func WriteErrorLog(errors []*ValidationError, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create validation log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	fmt.Fprintf(writer, "Validation Log - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	writer.WriteString(strings.Repeat("=", 60) + "\n\n")
	writer.WriteString(FormatErrors(errors))

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write validation log: %w", err)
	}
	return nil
}

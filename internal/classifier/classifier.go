// =============================================================================
// Guest Invoice Chunker - Line Classifier
// =============================================================================
//
// This package maps a single line of extracted page text to a tagged line
// kind, with the fields its pattern captured. The line patterns are not
// hard-coded: a Format is compiled from a format profile (see
// internal/config/formats.go) so new invoice layouts can be added without
// touching the reconstruction engine.
//
// Classification is pure. It never looks at neighbouring lines; whether a
// service item is accepted depends on state held by the page processor.
//
// =============================================================================

package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/config"
	"github.com/ginjaninja78/guest-invoice-chunker/internal/types"
)

// =============================================================================
// LINE KINDS
// =============================================================================

// Kind is the tag assigned to a classified line.
type Kind int

const (
	Blank Kind = iota
	Unrecognized
	GuestHeader
	RoomStayHeader
	ServiceTableMarker
	ServiceItem
	TotalLine
	ContinuationMarker

	// Malformed is a service item or total line whose numeric fields could
	// not be parsed. The page processor skips it and records a diagnostic.
	Malformed
)

var kindNames = map[Kind]string{
	Blank:              "blank",
	Unrecognized:       "unrecognized",
	GuestHeader:        "guest_header",
	RoomStayHeader:     "room_stay_header",
	ServiceTableMarker: "service_table_marker",
	ServiceItem:        "service_item",
	TotalLine:          "total_line",
	ContinuationMarker: "continuation_marker",
	Malformed:          "malformed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a rule kind from a format profile to a Kind. Blank,
// unrecognized and malformed cannot be declared by a rule.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "guest_header":
		return GuestHeader, nil
	case "room_stay_header":
		return RoomStayHeader, nil
	case "service_table_marker":
		return ServiceTableMarker, nil
	case "service_item":
		return ServiceItem, nil
	case "total_line":
		return TotalLine, nil
	case "continuation_marker":
		return ContinuationMarker, nil
	}
	return Unrecognized, fmt.Errorf("unknown rule kind %q", s)
}

// =============================================================================
// CLASSIFIED LINE
// =============================================================================

// Line is the result of classifying one line of page text.
type Line struct {
	Kind Kind

	// Text is the trimmed, normalized line.
	Text string

	// Fields holds the named captures of the matching rule, trimmed.
	Fields map[string]string

	// Service is set for ServiceItem lines.
	Service *types.ServiceLine

	// Amount is set for TotalLine lines.
	Amount float64

	// Err is set for Malformed lines.
	Err error
}

// Field returns a captured field, or "".
func (l Line) Field(name string) string {
	return l.Fields[name]
}

// =============================================================================
// FORMAT
// =============================================================================

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
}

// Format is a compiled format profile. It is immutable and safe for
// concurrent use.
type Format struct {
	Name               string
	AccumulateTotals   bool
	TotalRequiresTable bool
	ResumeTableOnCarry bool
	RequiredFields     []string

	rules []rule
}

// captures that every rule of a given kind must declare.
var requiredCaptures = map[Kind][]string{
	ServiceItem: {types.FieldDescription, types.FieldQuantity, types.FieldUnitPrice, types.FieldLineTotal},
	TotalLine:   {types.FieldAmount},
}

var knownCaptures = map[string]bool{
	types.FieldName:        true,
	types.FieldFirstName:   true,
	types.FieldLastName:    true,
	types.FieldGuestID:     true,
	types.FieldRoom:        true,
	types.FieldCheckIn:     true,
	types.FieldCheckOut:    true,
	types.FieldDescription: true,
	types.FieldTaxRate:     true,
	types.FieldQuantity:    true,
	types.FieldUnitPrice:   true,
	types.FieldLineTotal:   true,
	types.FieldAmount:      true,
}

// Compile validates a format profile and compiles its rule patterns.
//
// PARAMETERS:
//   - fc: The format profile.
//
// RETURNS:
//   - The compiled Format.
//   - An error naming the first offending rule or required field.
func Compile(fc *config.FormatConfig) (*Format, error) {
	if fc == nil {
		return nil, fmt.Errorf("format config is nil")
	}
	if len(fc.Rules) == 0 {
		return nil, fmt.Errorf("format %q: no rules", fc.Name)
	}

	f := &Format{
		Name:               fc.Name,
		AccumulateTotals:   fc.AccumulateTotals,
		TotalRequiresTable: fc.TotalRequiresTable,
		ResumeTableOnCarry: fc.ResumeTableOnCarry,
		RequiredFields:     append([]string(nil), fc.RequiredFields...),
	}

	hasHeader := false
	for i, rc := range fc.Rules {
		kind, err := ParseKind(rc.Kind)
		if err != nil {
			return nil, fmt.Errorf("format %q rule %d: %w", fc.Name, i+1, err)
		}
		re, err := regexp.Compile(rc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("format %q rule %d: invalid pattern: %w", fc.Name, i+1, err)
		}
		if err := checkCaptures(kind, re); err != nil {
			return nil, fmt.Errorf("format %q rule %d (%s): %w", fc.Name, i+1, kind, err)
		}
		if kind == GuestHeader {
			hasHeader = true
		}
		f.rules = append(f.rules, rule{kind: kind, pattern: re})
	}

	if !hasHeader {
		return nil, fmt.Errorf("format %q: no guest_header rule", fc.Name)
	}

	for _, field := range f.RequiredFields {
		if field == types.FieldTotalLine {
			continue
		}
		if !isIdentityField(field) {
			return nil, fmt.Errorf("format %q: unknown required field %q", fc.Name, field)
		}
	}

	return f, nil
}

func checkCaptures(kind Kind, re *regexp.Regexp) error {
	declared := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		if !knownCaptures[name] {
			return fmt.Errorf("unknown capture group %q", name)
		}
		declared[name] = true
	}

	for _, name := range requiredCaptures[kind] {
		if !declared[name] {
			return fmt.Errorf("missing capture group %q", name)
		}
	}

	if kind == GuestHeader {
		for _, name := range types.IdentityFields {
			if declared[name] {
				return nil
			}
		}
		return fmt.Errorf("guest_header needs at least one identity capture")
	}
	return nil
}

func isIdentityField(name string) bool {
	for _, f := range types.IdentityFields {
		if f == name {
			return true
		}
	}
	return false
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify tags a single line. The first matching rule wins.
func (f *Format) Classify(raw string) Line {
	text := normalize(raw)
	if text == "" {
		return Line{Kind: Blank}
	}

	for _, r := range f.rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		line := Line{Kind: r.kind, Text: text, Fields: captures(r.pattern, m)}
		switch r.kind {
		case ServiceItem:
			svc, err := parseService(line.Fields)
			if err != nil {
				return Line{Kind: Malformed, Text: text, Fields: line.Fields, Err: err}
			}
			line.Service = svc
		case TotalLine:
			amount, err := ParseAmount(line.Fields[types.FieldAmount])
			if err != nil {
				return Line{Kind: Malformed, Text: text, Fields: line.Fields, Err: fmt.Errorf("total: %w", err)}
			}
			line.Amount = amount
		}
		return line
	}

	return Line{Kind: Unrecognized, Text: text}
}

// normalize trims the line and applies NFKC so that non-breaking and other
// compatibility spaces produced by PDF extraction match \s.
func normalize(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func captures(re *regexp.Regexp, m []string) map[string]string {
	fields := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name == "" || i >= len(m) {
			continue
		}
		if v := strings.TrimSpace(m[i]); v != "" {
			fields[name] = v
		}
	}
	return fields
}

func parseService(fields map[string]string) (*types.ServiceLine, error) {
	qty, err := ParseQuantity(fields[types.FieldQuantity])
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	unit, err := ParseAmount(fields[types.FieldUnitPrice])
	if err != nil {
		return nil, fmt.Errorf("unit price: %w", err)
	}
	total, err := ParseAmount(fields[types.FieldLineTotal])
	if err != nil {
		return nil, fmt.Errorf("line total: %w", err)
	}
	return &types.ServiceLine{
		Description: fields[types.FieldDescription],
		TaxRate:     fields[types.FieldTaxRate],
		Quantity:    qty,
		UnitPrice:   unit,
		LineTotal:   total,
	}, nil
}

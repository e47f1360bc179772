package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed formats/*.yaml
var builtinFormatFS embed.FS

// =============================================================================
// FORMAT PROFILE STRUCTURE
// =============================================================================

// FormatConfig describes one invoice layout. Each layout has its own line
// patterns, its own rules for when a guest record counts as complete, and
// its own file matching patterns.
type FormatConfig struct {
	// =========================================================================
	// FORMAT IDENTIFICATION
	// =========================================================================

	// Name identifies the format in --format, the HTTP API and output names.
	Name string `yaml:"name"`

	// Description is shown by `chunker validate` and GET /api/v1/formats.
	Description string `yaml:"description"`

	// =========================================================================
	// FILE MATCHING RULES
	// =========================================================================

	// FileMatchingPatterns is a list of glob patterns matched against the
	// input file name. Examples:
	//   - "natural_split_*.pdf"
	//   - "*hotel_invoice*"
	FileMatchingPatterns []string `yaml:"file_matching_patterns"`

	// =========================================================================
	// RECONSTRUCTION SETTINGS
	// =========================================================================

	// AccumulateTotals adds every service line total to the running record
	// total. An explicit total line always overwrites the running value.
	AccumulateTotals bool `yaml:"accumulate_totals"`

	// TotalRequiresTable only accepts a total line while a service table is
	// open.
	TotalRequiresTable bool `yaml:"total_requires_table"`

	// ResumeTableOnCarry keeps the service table open at the top of a page
	// when a record was carried over from the previous page. Layouts that
	// print the table header before the page break and continue with bare
	// service rows need this.
	ResumeTableOnCarry bool `yaml:"resume_table_on_carry"`

	// RequiredFields lists the identity fields a record needs before it can
	// be emitted. The pseudo-field "total_line" additionally requires an
	// explicit total line.
	RequiredFields []string `yaml:"required_fields"`

	// =========================================================================
	// LINE RULES
	// =========================================================================

	// Rules are tried in order against every non-blank line. The first
	// matching rule decides the line kind.
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig binds a regular expression to a line kind. Named capture
// groups bind to canonical field names (name, room, quantity, ...).
type RuleConfig struct {
	// Kind is one of: guest_header, room_stay_header, service_table_marker,
	// service_item, total_line, continuation_marker.
	Kind string `yaml:"kind"`

	// Pattern is an RE2 regular expression.
	Pattern string `yaml:"pattern"`
}

// =============================================================================
// FORMAT LOADING FUNCTIONS
// =============================================================================

// LoadFormatConfigs loads the builtin format profiles and then every YAML
// file in formatsDir. A file whose name matches a builtin replaces it. A
// missing formatsDir is not an error.
//
// RETURNS:
//   - A map of format profiles keyed by name.
//   - An error if any file cannot be read or parsed.
func LoadFormatConfigs(formatsDir string) (map[string]*FormatConfig, error) {
	configs, err := BuiltinFormats()
	if err != nil {
		return nil, err
	}

	if formatsDir == "" {
		return configs, nil
	}
	if _, err := os.Stat(formatsDir); os.IsNotExist(err) {
		return configs, nil
	}

	files, err := filepath.Glob(filepath.Join(formatsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list format files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(formatsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list format files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		fc, err := ParseFormatConfig(data, file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		configs[fc.Name] = fc
	}

	return configs, nil
}

// BuiltinFormats returns fresh copies of the embedded format profiles.
func BuiltinFormats() (map[string]*FormatConfig, error) {
	configs := make(map[string]*FormatConfig)

	entries, err := fs.ReadDir(builtinFormatFS, "formats")
	if err != nil {
		return nil, fmt.Errorf("failed to list builtin formats: %w", err)
	}
	for _, entry := range entries {
		name := "formats/" + entry.Name()
		data, err := builtinFormatFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read builtin format %s: %w", name, err)
		}
		fc, err := ParseFormatConfig(data, name)
		if err != nil {
			return nil, fmt.Errorf("builtin format %s: %w", name, err)
		}
		configs[fc.Name] = fc
	}

	return configs, nil
}

// ParseFormatConfig parses one format profile. source is used as the
// fallback name (file name without extension) and in error messages.
func ParseFormatConfig(data []byte, source string) (*FormatConfig, error) {
	var fc FormatConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}

	if fc.Name == "" {
		base := filepath.Base(source)
		fc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	applyFormatConfigDefaults(&fc)

	if len(fc.Rules) == 0 {
		return nil, fmt.Errorf("format %q declares no rules", fc.Name)
	}
	return &fc, nil
}

// applyFormatConfigDefaults normalizes rule kinds and field names.
func applyFormatConfigDefaults(fc *FormatConfig) {
	fc.Name = strings.TrimSpace(fc.Name)
	for i := range fc.Rules {
		fc.Rules[i].Kind = strings.ToLower(strings.TrimSpace(fc.Rules[i].Kind))
	}
	for i := range fc.RequiredFields {
		fc.RequiredFields[i] = strings.ToLower(strings.TrimSpace(fc.RequiredFields[i]))
	}
}

// =============================================================================
// FORMAT SELECTION
// =============================================================================

// Matches reports whether fileName matches one of the profile's
// file_matching_patterns. Only the base name is compared, case-insensitively.
func (fc *FormatConfig) Matches(fileName string) bool {
	base := strings.ToLower(filepath.Base(fileName))
	for _, pattern := range fc.FileMatchingPatterns {
		if ok, _ := filepath.Match(strings.ToLower(pattern), base); ok {
			return true
		}
	}
	return false
}

// ErrUnknownFormat is returned when a format name is not defined.
var ErrUnknownFormat = errors.New("unknown format")

// SelectFormat picks the profile for an input file. An explicit name wins,
// then the first profile (by name) whose patterns match, then defaultName.
func SelectFormat(formats map[string]*FormatConfig, explicit, fileName, defaultName string) (*FormatConfig, error) {
	if explicit != "" {
		fc, ok := formats[explicit]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownFormat, explicit)
		}
		return fc, nil
	}

	for _, name := range FormatNames(formats) {
		if formats[name].Matches(fileName) {
			return formats[name], nil
		}
	}

	fc, ok := formats[defaultName]
	if !ok {
		return nil, fmt.Errorf("%w: no format matches %s and default %q is not defined", ErrUnknownFormat, filepath.Base(fileName), defaultName)
	}
	return fc, nil
}

// FormatNames returns the profile names in sorted order.
func FormatNames(formats map[string]*FormatConfig) []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

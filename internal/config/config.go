// =============================================================================
// Guest Invoice Chunker - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing all configuration. It
// handles both the main application configuration and the per-layout format
// profiles.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): Global application settings, loaded with
//      viper so every key can be overridden by a CHUNKER_* environment
//      variable (CHUNKER_OUTPUT_DIR, CHUNKER_STORE_DSN, ...).
//   2. Format Profiles (formats/*.yaml): One file per invoice layout. See
//      formats.go.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFile is used when --config is not given.
const DefaultConfigFile = "config.yaml"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "CHUNKER"

// SupportedOutputFormats lists the record sinks that can be named in
// output_formats.
var SupportedOutputFormats = []string{"json", "csv", "xlsx", "xml"}

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for invoice documents (.pdf, .txt, page directories).
	InputDir string `mapstructure:"input_dir"`

	// OutputDir receives the reconstructed record files and run logs.
	OutputDir string `mapstructure:"output_dir"`

	// InputArchiveDir receives input documents after successful processing.
	InputArchiveDir string `mapstructure:"input_archive_dir"`

	// OutputArchiveDir receives a copy of every output file.
	OutputArchiveDir string `mapstructure:"output_archive_dir"`

	// FormatsDir holds user-defined format profiles. Builtin profiles are
	// always available and are overridden by a file with the same name.
	FormatsDir string `mapstructure:"formats_dir"`

	// =========================================================================
	// FORMAT SELECTION
	// =========================================================================

	// DefaultFormat is used when no profile's file_matching_patterns match.
	DefaultFormat string `mapstructure:"default_format"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFormats selects the record sinks written for every document.
	OutputFormats []string `mapstructure:"output_formats"`

	// FileNameFormat defines output file names (without extension).
	// Placeholders:
	//   {uuid}      - the run ID
	//   {timestamp} - current timestamp (YYYYMMDD_HHMMSS)
	//   {source}    - input file name without extension
	//   {format}    - format profile name
	FileNameFormat string `mapstructure:"file_name_format"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `mapstructure:"log_format"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of documents processed at once.
	// Pages within one document are always processed sequentially.
	MaxConcurrency int `mapstructure:"max_concurrency"`

	// ContinueOnError keeps writing outputs when the audit finds errors.
	ContinueOnError bool `mapstructure:"continue_on_error"`

	// ArchiveInputs moves processed inputs to InputArchiveDir.
	ArchiveInputs bool `mapstructure:"archive_inputs"`

	// PdftotextPath is the pdftotext binary used to extract page text.
	PdftotextPath string `mapstructure:"pdftotext_path"`

	// =========================================================================
	// COLLABORATORS
	// =========================================================================

	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Watch  WatchConfig  `mapstructure:"watch"`
}

// StoreConfig configures the optional record store. An empty Driver disables it.
type StoreConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Enabled reports whether records should be persisted.
func (s StoreConfig) Enabled() bool {
	return s.Driver != ""
}

// ServerConfig configures the HTTP API started by `chunker serve`.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// WatchConfig configures `chunker watch`.
type WatchConfig struct {
	// Debounce coalesces bursts of filesystem events for the same file.
	Debounce time.Duration `mapstructure:"debounce"`

	// InitialScan processes documents already present when the watch starts.
	InitialScan bool `mapstructure:"initial_scan"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load reads the main configuration.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file. A missing file is
//     only an error when it is not the default config.yaml.
//
// RETURNS:
//   - A pointer to the MainConfig struct with defaults applied.
//   - An error if the file cannot be parsed or the result is invalid.
func Load(configPath string) (*MainConfig, error) {
	v := viper.New()
	applyMainConfigDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if configPath != DefaultConfigFile {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config MainConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	normalizeMainConfig(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyMainConfigDefaults registers a default for every key so that
// AutomaticEnv overrides are picked up by Unmarshal.
func applyMainConfigDefaults(v *viper.Viper) {
	v.SetDefault("input_dir", "./input")
	v.SetDefault("output_dir", "./output")
	v.SetDefault("input_archive_dir", "./input_archive")
	v.SetDefault("output_archive_dir", "./output_archive")
	v.SetDefault("formats_dir", "./formats")
	v.SetDefault("default_format", "stay_line")
	v.SetDefault("output_formats", []string{"json"})
	v.SetDefault("file_name_format", "{source}_{timestamp}_{uuid}")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("continue_on_error", true)
	v.SetDefault("archive_inputs", false)
	v.SetDefault("pdftotext_path", "pdftotext")

	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", int64(10<<20))

	v.SetDefault("watch.debounce", 500*time.Millisecond)
	v.SetDefault("watch.initial_scan", true)
}

// normalizeMainConfig lower-cases enumerated values and splits
// comma-separated output formats given as a single value.
func normalizeMainConfig(config *MainConfig) {
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	config.LogFormat = strings.ToLower(strings.TrimSpace(config.LogFormat))
	config.Store.Driver = strings.ToLower(strings.TrimSpace(config.Store.Driver))

	var formats []string
	for _, f := range config.OutputFormats {
		for _, part := range strings.Split(f, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" {
				formats = append(formats, part)
			}
		}
	}
	config.OutputFormats = formats
}

// validateMainConfig validates the main configuration.
func validateMainConfig(config *MainConfig) error {
	if config.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", config.MaxConcurrency)
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", config.LogLevel)
	}

	switch config.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", config.LogFormat)
	}

	for _, f := range config.OutputFormats {
		if !isSupportedOutputFormat(f) {
			return fmt.Errorf("unknown output format %q (supported: %s)",
				f, strings.Join(SupportedOutputFormats, ", "))
		}
	}

	switch config.Store.Driver {
	case "":
	case "sqlite", "pgx":
		if config.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver is %q", config.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q (supported: sqlite, pgx)", config.Store.Driver)
	}

	if config.DefaultFormat == "" {
		return fmt.Errorf("default_format is required")
	}

	return nil
}

func isSupportedOutputFormat(name string) bool {
	for _, f := range SupportedOutputFormats {
		if f == name {
			return true
		}
	}
	return false
}

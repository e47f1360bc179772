package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWhenDefaultFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(DefaultConfigFile)
	require.NoError(t, err)

	assert.Equal(t, "./input", cfg.InputDir)
	assert.Equal(t, "stay_line", cfg.DefaultFormat)
	assert.Equal(t, []string{"json"}, cfg.OutputFormats)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.False(t, cfg.Store.Enabled())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
output_dir: /tmp/out
output_formats: [json, csv]
log_level: DEBUG
max_concurrency: 2
store:
  driver: sqlite
  dsn: file::memory:
watch:
  debounce: 2s
`)
	t.Setenv("CHUNKER_MAX_CONCURRENCY", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, []string{"json", "csv"}, cfg.OutputFormats)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.True(t, cfg.Store.Enabled())
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad output format", "output_formats: [pdf]"},
		{"bad log level", "log_level: loud"},
		{"zero concurrency", "max_concurrency: 0"},
		{"unknown driver", "store:\n  driver: mysql\n  dsn: x"},
		{"driver without dsn", "store:\n  driver: sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestBuiltinFormats(t *testing.T) {
	formats, err := BuiltinFormats()
	require.NoError(t, err)

	require.Contains(t, formats, "stay_line")
	require.Contains(t, formats, "guest_id")

	stay := formats["stay_line"]
	assert.True(t, stay.AccumulateTotals)
	assert.True(t, stay.TotalRequiresTable)
	assert.Equal(t, []string{"name", "room", "check_in", "check_out", "total_line"}, stay.RequiredFields)

	gid := formats["guest_id"]
	assert.False(t, gid.AccumulateTotals)
	assert.Contains(t, gid.RequiredFields, "total_line")
}

func TestLoadFormatConfigs_OverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stay_line.yaml", `
name: stay_line
description: custom
rules:
  - kind: guest_header
    pattern: '^G (?P<name>.+)$'
`)
	writeFile(t, dir, "folio.yml", `
rules:
  - kind: total_line
    pattern: '^SUM (?P<amount>\S+)$'
`)

	formats, err := LoadFormatConfigs(dir)
	require.NoError(t, err)

	assert.Equal(t, "custom", formats["stay_line"].Description)
	require.Contains(t, formats, "folio")
	require.Contains(t, formats, "guest_id")
}

func TestLoadFormatConfigs_MissingDir(t *testing.T) {
	formats, err := LoadFormatConfigs(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Len(t, formats, 2)
}

func TestParseFormatConfig_NoRules(t *testing.T) {
	_, err := ParseFormatConfig([]byte("name: empty\n"), "empty.yaml")
	require.Error(t, err)
}

func TestSelectFormat(t *testing.T) {
	formats, err := BuiltinFormats()
	require.NoError(t, err)

	fc, err := SelectFormat(formats, "", "/in/natural_split_hotel.pdf", "guest_id")
	require.NoError(t, err)
	assert.Equal(t, "stay_line", fc.Name)

	fc, err = SelectFormat(formats, "", "/in/LARGE_TEST_invoices.pdf", "stay_line")
	require.NoError(t, err)
	assert.Equal(t, "guest_id", fc.Name)

	fc, err = SelectFormat(formats, "", "/in/other.txt", "guest_id")
	require.NoError(t, err)
	assert.Equal(t, "guest_id", fc.Name)

	fc, err = SelectFormat(formats, "stay_line", "/in/large_test.pdf", "guest_id")
	require.NoError(t, err)
	assert.Equal(t, "stay_line", fc.Name)

	_, err = SelectFormat(formats, "nope", "x.pdf", "stay_line")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = SelectFormat(formats, "", "x.pdf", "missing")
	require.Error(t, err)
}

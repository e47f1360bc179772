package pagesource

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// Runner executes an external command and returns its output. The PDF
// source calls it for pdftotext; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// maxLoggedStderr caps the stderr attached to a failure log entry.
const maxLoggedStderr = 4 << 10

// commandRunner runs commands with os/exec and logs each run.
type commandRunner struct {
	logger *slog.Logger
}

func (r commandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if err != nil {
		r.logger.Warn("page extraction command failed",
			"command", name,
			"elapsed", elapsed,
			"error", err,
			"stderr", clip(stderr.String(), maxLoggedStderr),
		)
	} else {
		r.logger.Debug("page extraction command finished",
			"command", name,
			"elapsed", elapsed,
			"output_bytes", stdout.Len(),
		)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// clip shortens s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + " [clipped]"
}

// PDF extracts page text with pdftotext.
type PDF struct {
	Path      string
	Pdftotext string
	runner    Runner
}

// NewPDF returns a PDF source using opts.Runner, or os/exec logging to
// opts.Logger when unset.
func NewPDF(path string, opts Options) *PDF {
	bin := opts.PdftotextPath
	if bin == "" {
		bin = "pdftotext"
	}
	r := opts.Runner
	if r == nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		r = commandRunner{logger: logger.With("path", path)}
	}
	return &PDF{Path: path, Pdftotext: bin, runner: r}
}

func (p *PDF) Name() string { return p.Path }

// Pages runs `pdftotext -layout -enc UTF-8 -eol unix <path> -`.
func (p *PDF) Pages(ctx context.Context) ([]string, error) {
	out, errb, err := p.runner.Run(ctx, p.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", p.Path, "-")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			err = errors.Join(err, errors.New(msg))
		}
		return nil, &SourceError{Path: p.Path, Err: err}
	}
	return SplitPages(string(out)), nil
}

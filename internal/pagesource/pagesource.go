// =============================================================================
// Guest Invoice Chunker - Page Sources
// =============================================================================
//
// A page source yields the extracted text of a document one page at a time,
// in page order. The reconstruction engine only ever sees page text; how
// the text was produced (pdftotext, a pre-extracted text file, one file per
// page) is decided here.
//
// SUPPORTED SOURCES:
//   - PDF:      runs pdftotext -layout and splits on form feeds
//   - TextFile: a text file with form feeds between pages
//   - PageDir:  a directory of page-1.txt, page-2.txt, ... files
//   - Pages:    in-memory pages (HTTP API, tests)
//
// =============================================================================

package pagesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrSourceUnavailable is returned when a document's pages cannot be read.
// Reconstruction of that document is aborted.
var ErrSourceUnavailable = errors.New("page source unavailable")

// SourceError carries the failing path. It matches both
// ErrSourceUnavailable and the underlying error with errors.Is.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("page source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// PageSeparator separates pages in pdftotext output and in text files.
const PageSeparator = "\f"

// Source yields the text of every page of one document, in page order.
type Source interface {
	Name() string
	Pages(ctx context.Context) ([]string, error)
}

// Options configures Open.
type Options struct {
	// PdftotextPath defaults to "pdftotext".
	PdftotextPath string

	// Runner defaults to executing the command.
	Runner Runner

	// Logger receives command logs of the default Runner.
	Logger *slog.Logger
}

// Open picks a source for path: a directory becomes a PageDir, a .pdf a
// PDF, anything else a TextFile.
func Open(path string, opts Options) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	if info.IsDir() {
		return PageDir{Dir: path}, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewPDF(path, opts), nil
	}
	return TextFile{Path: path}, nil
}

// IsDocument reports whether path looks like an input document Open can
// read: a .pdf or .txt file, or a directory containing page files.
func IsDocument(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		files, _ := pageFiles(path)
		return len(files) > 0
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// SplitPages splits form-feed separated text into pages. The empty page
// after a trailing form feed is dropped.
func SplitPages(text string) []string {
	if text == "" {
		return nil
	}
	pages := strings.Split(text, PageSeparator)
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// =============================================================================
// IN-MEMORY PAGES
// =============================================================================

// Pages is an in-memory document.
type Pages struct {
	Label string
	Texts []string
}

func (p Pages) Name() string {
	if p.Label == "" {
		return "memory"
	}
	return p.Label
}

func (p Pages) Pages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Texts, nil
}

// =============================================================================
// TEXT FILE
// =============================================================================

// TextFile reads a form-feed separated text file.
type TextFile struct {
	Path string
}

func (t TextFile) Name() string { return t.Path }

func (t TextFile) Pages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return nil, &SourceError{Path: t.Path, Err: err}
	}
	return SplitPages(string(data)), nil
}

// =============================================================================
// PAGE DIRECTORY
// =============================================================================

// PageDir reads page-N.txt files from a directory, ordered by N.
type PageDir struct {
	Dir string
}

var pageFileRe = regexp.MustCompile(`(?i)^page[-_]?(\d+)\.txt$`)

func (d PageDir) Name() string { return d.Dir }

func (d PageDir) Pages(ctx context.Context) ([]string, error) {
	files, err := pageFiles(d.Dir)
	if err != nil {
		return nil, &SourceError{Path: d.Dir, Err: err}
	}
	if len(files) == 0 {
		return nil, &SourceError{Path: d.Dir, Err: errors.New("no page files found")}
	}

	pages := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, &SourceError{Path: f, Err: err}
		}
		pages = append(pages, string(data))
	}
	return pages, nil
}

// pageFiles lists page files sorted by page number.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	files := make([]string, len(found))
	for i, f := range found {
		files[i] = f.path
	}
	return files, nil
}

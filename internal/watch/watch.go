// =============================================================================
// Guest Invoice Chunker - Input Directory Watcher
// =============================================================================
//
// Watches the input directory and hands every new or updated document to a
// handler once its filesystem events have been quiet for the debounce
// interval. Page directories are watched too; an event inside one is
// reported for the directory itself.
//
// Documents are handled one at a time, in the order they settle.
//
// =============================================================================

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ginjaninja78/guest-invoice-chunker/internal/pagesource"
	"github.com/ginjaninja78/guest-invoice-chunker/pkg/utils"
)

// Handler processes one settled document.
type Handler func(ctx context.Context, path string)

// Config configures a Watcher.
type Config struct {
	Dir         string
	Debounce    time.Duration
	InitialScan bool
}

// Watcher dispatches settled documents in Dir to a Handler.
type Watcher struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
}

// New returns a Watcher. A nil logger discards output.
func New(cfg Config, handler Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{cfg: cfg, handler: handler, logger: logger.With("dir", cfg.Dir)}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.cfg.Dir == "" {
		return errors.New("watch: no directory configured")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.cfg.Dir, err)
	}
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addDir(fw, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}

	if w.cfg.InitialScan {
		files, err := utils.NewFileManager(w.cfg.Dir, "", "", "").DiscoverInputFiles()
		if err != nil {
			return fmt.Errorf("watch: initial scan: %w", err)
		}
		for _, path := range files {
			if ctx.Err() != nil {
				return nil
			}
			w.dispatch(ctx, path)
		}
	}

	w.logger.Info("watching for documents", "debounce", w.cfg.Debounce)

	ready := make(chan string, 64)
	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && filepath.Dir(ev.Name) == filepath.Clean(w.cfg.Dir) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addDir(fw, ev.Name)
				}
			}

			doc, ok := w.documentPath(ev.Name)
			if !ok {
				continue
			}
			w.schedule(ctx, timers, ready, doc)

		case doc := <-ready:
			delete(timers, doc)
			w.dispatch(ctx, doc)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// schedule arms or re-arms the debounce timer for doc. A timer that has
// already fired is left alone: doc is queued on ready and will be
// dispatched once, after the write that triggered this call.
func (w *Watcher) schedule(ctx context.Context, timers map[string]*time.Timer, ready chan<- string, doc string) {
	if t, exists := timers[doc]; exists {
		if t.Stop() {
			t.Reset(w.cfg.Debounce)
		}
		return
	}
	timers[doc] = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case ready <- doc:
		case <-ctx.Done():
		}
	})
}

// documentPath maps an event path to the top-level entry of Dir it
// belongs to.
func (w *Watcher) documentPath(name string) (string, bool) {
	rel, err := filepath.Rel(w.cfg.Dir, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	if strings.HasPrefix(first, ".") {
		return "", false
	}
	return filepath.Join(w.cfg.Dir, first), true
}

func (w *Watcher) addDir(fw *fsnotify.Watcher, dir string) {
	if err := fw.Add(dir); err != nil {
		w.logger.Warn("failed to watch directory", "path", dir, "error", err)
	}
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	if !pagesource.IsDocument(path) {
		w.logger.Debug("ignoring non-document", "path", path)
		return
	}
	w.logger.Info("document ready", "path", path)
	w.handler(ctx, path)
}

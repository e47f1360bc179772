package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(ctx context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func start(t *testing.T, cfg Config, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg, rec.handle, nil).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_InitialScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Guest: A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))

	rec := &recorder{}
	start(t, Config{Dir: dir, Debounce: 20 * time.Millisecond, InitialScan: true}, rec)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.txt"}, rec.seen())
}

func TestWatcher_NewFileDebounced(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, Config{Dir: dir, Debounce: 100 * time.Millisecond}, rec)

	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte("part 1\n"), 0644))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("\fpart 2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return len(rec.seen()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"invoice.txt"}, rec.seen())
}

func TestWatcher_IgnoresNonDocuments(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestWatcher_PageDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	start(t, Config{Dir: dir, Debounce: 20 * time.Millisecond}, rec)

	pages := filepath.Join(dir, "scan")
	require.NoError(t, os.Mkdir(pages, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(pages, "page_1.txt"), []byte("Guest: A"), 0644))

	assert.Eventually(t, func() bool {
		seen := rec.seen()
		return len(seen) > 0 && seen[len(seen)-1] == "scan"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedule_FiredTimerNotRearmed(t *testing.T) {
	w := New(Config{Dir: "/in", Debounce: 10 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timers := map[string]*time.Timer{}
	ready := make(chan string, 4)

	w.schedule(ctx, timers, ready, "/in/a.pdf")
	assert.Eventually(t, func() bool { return len(ready) == 1 }, time.Second, time.Millisecond)

	// Another write arrives before the loop has read ready.
	w.schedule(ctx, timers, ready, "/in/a.pdf")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ready, 1)
}

func TestSchedule_PendingTimerReset(t *testing.T) {
	w := New(Config{Dir: "/in", Debounce: 150 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timers := map[string]*time.Timer{}
	ready := make(chan string, 4)

	w.schedule(ctx, timers, ready, "/in/a.pdf")
	time.Sleep(75 * time.Millisecond)
	w.schedule(ctx, timers, ready, "/in/a.pdf")
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, ready, "reset pushes the deadline out")

	assert.Eventually(t, func() bool { return len(ready) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, timers, 1)
}

func TestDocumentPath(t *testing.T) {
	w := New(Config{Dir: "/in"}, nil, nil)

	doc, ok := w.documentPath("/in/scan/page_1.txt")
	assert.True(t, ok)
	assert.Equal(t, "/in/scan", doc)

	doc, ok = w.documentPath("/in/a.pdf")
	assert.True(t, ok)
	assert.Equal(t, "/in/a.pdf", doc)

	_, ok = w.documentPath("/other/a.pdf")
	assert.False(t, ok)

	_, ok = w.documentPath("/in/.tmp/a.pdf")
	assert.False(t, ok)
}

func TestRun_NoDir(t *testing.T) {
	assert.Error(t, New(Config{}, nil, nil).Run(context.Background()))
}

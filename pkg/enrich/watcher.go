package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write event
// before enriching a photo. Uploads land as bursts of partial writes.
const DefaultDebounce = 2 * time.Second

// Watcher enriches photos dropped into a spool directory. Each file gets
// its own debounce timer so a slow upload is enriched once, after it
// settles.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
}

// NewWatcher creates a spool watcher over dir. A non-positive debounce
// falls back to DefaultDebounce.
func NewWatcher(pipeline *Pipeline, dir string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		pipeline: pipeline,
		dir:      dir,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
	}
}

// Run watches the spool directory until the context is cancelled. Only new
// writes trigger enrichment; photos already in the directory when Run
// starts are left alone.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("watching photo spool", "dir", w.dir, "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !shouldEnrich(event) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Warn("spool watch error", "error", err)

		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one file.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		default:
			slog.Warn("spool backlog full, dropping photo", "photo", path)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	result, err := w.pipeline.Enrich(ctx, Request{PhotoPath: path})
	if err != nil {
		slog.Error("spool enrichment failed", "photo", path, "error", err)
		return
	}
	slog.Info("spool photo enriched", "photo", path, "summary", result.Summary)
}

// shouldEnrich filters watch events down to finished photo writes.
func shouldEnrich(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return isPhotoFile(event.Name)
}

// isPhotoFile reports whether the path carries a supported photo extension.
func isPhotoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

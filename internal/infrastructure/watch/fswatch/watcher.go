// Package fswatch imports files dropped into the knowledge base directory
// while the worker is running.
package fswatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

const defaultDebounce = 500 * time.Millisecond

type Importer interface {
	ImportFile(ctx context.Context, path string, hardKB bool, opts domain.LoadOptions) (bool, error)
}

type Options struct {
	HardKB   bool
	Debounce time.Duration
	// OnImport is called after every import attempt.
	OnImport func(path string, loaded bool, err error)
}

type Watcher struct {
	dir      string
	importer Importer
	opts     Options
}

func New(dir string, importer Importer, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Watcher{dir: dir, importer: importer, opts: opts}
}

// Run blocks until ctx is done. Writes to the same file are coalesced so a
// file copied in several chunks is imported once.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	slog.Info("knowledge_base_watch_started", "dir", w.dir, "hard_kb", w.opts.HardKB)

	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, timer := range timers {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path, ok := importablePath(event)
			if !ok {
				continue
			}
			if timer, exists := timers[path]; exists {
				timer.Reset(w.opts.Debounce)
				continue
			}
			timers[path] = time.AfterFunc(w.opts.Debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})
		case path := <-ready:
			delete(timers, path)
			w.importFile(ctx, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("knowledge_base_watch_error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	loaded, err := w.importer.ImportFile(ctx, path, w.opts.HardKB, domain.LoadOptions{})
	if err != nil {
		slog.Error("knowledge_base_watch_import_failed", "file", path, "error", err)
	} else if loaded {
		slog.Info("knowledge_base_watch_imported", "file", path)
	}
	if w.opts.OnImport != nil {
		w.opts.OnImport(path, loaded, err)
	}
}

// importablePath reports the file behind a create or write event. Hidden
// files and directories are ignored.
func importablePath(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

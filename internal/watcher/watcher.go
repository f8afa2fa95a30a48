// Package watcher watches a directory of bundle files and reports changed
// files after a quiet period.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory for changes to files with one extension
type Watcher struct {
	dir      string
	ext      string
	onChange func(ctx context.Context, path string)
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a watcher for the .json files of dir
func New(dir string, onChange func(ctx context.Context, path string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		ext:      ".json",
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger.With("component", "watcher"),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Files lists the matching files currently in the directory, sorted
func (w *Watcher) Files() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && w.matches(e.Name()) {
			files = append(files, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Scan calls onChange for every matching file already present
func (w *Watcher) Scan(ctx context.Context) error {
	files, err := w.Files()
	if err != nil {
		return err
	}
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.onChange(ctx, path)
	}
	return nil
}

func (w *Watcher) matches(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), w.ext)
}

// Watch starts watching the directory. Each file is debounced on its own,
// so editors that write in several steps trigger one change.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching bundle directory", "dir", w.dir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, timer := range timers {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.matches(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			path := event.Name
			mu.Lock()
			if timer, exists := timers[path]; exists {
				timer.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				w.logger.Info("bundle file changed", "path", path)
				w.onChange(ctx, path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

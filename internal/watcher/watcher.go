// Package watcher feeds an inbox directory into the ingest pipeline. File
// events are debounced and handed to callbacks; the ingest side decides
// whether a path is new, changed, or already indexed.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches one inbox root, recursively, and invokes callbacks when
// files appear, change, or disappear.
type Watcher struct {
	root       string
	extensions []string
	onIngest   func(path string)
	onRemove   func(path string)
	debounce   time.Duration
	logger     *zap.Logger

	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher over root. onIngest and onRemove receive
// absolute file paths after debouncing; extensions filter which files are
// reported (empty = all). Callbacks run on the watcher goroutine, so slow
// work inside them delays later events.
func NewWatcher(root string, extensions []string, onIngest, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		extensions:  extensions,
		onIngest:    onIngest,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The inbox root is created if missing. The watcher
// runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := addTree(fw, w.root); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("watcher started",
		zap.String("root", w.root),
		zap.Strings("extensions", w.extensions))
	// Channels are captured here so run never dereferences w.watcher after
	// Stop nils it; Close ends the loop by closing them.
	go w.run(ctx, fw.Events, fw.Errors)
	return nil
}

// addTree registers root and every directory below it, creating root first
// when it does not exist.
func addTree(fw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// A directory moved or created inside the inbox: watch it and
			// report the files it already carries.
			w.watchTree(path)
			w.syncDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.scheduleIngest(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// Rename reports the old path; the new one arrives as Create.
		w.cancelDebounce(path)
		if w.matchExtension(path) && w.onRemove != nil {
			w.logger.Debug("watcher removal", zap.String("path", path))
			w.onRemove(path)
		}
	}
}

// watchTree adds dir and its subdirectories. Failures are logged and
// skipped; a directory that vanished between the event and the walk is not
// an error.
func (w *Watcher) watchTree(dir string) {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// syncDirectory reports every matching file under root to onIngest.
func (w *Watcher) syncDirectory(root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.matchExtension(path) && w.onIngest != nil {
			w.logger.Debug("watcher sync", zap.String("path", path))
			w.onIngest(path)
		}
		return nil
	})
}

// SyncExistingFiles reports files already present under the inbox root.
// Call it after Start to pick up files dropped while the process was down;
// the ingest side skips the ones it has already seen.
func (w *Watcher) SyncExistingFiles() {
	w.syncDirectory(w.root)
}

func (w *Watcher) scheduleIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("watcher ingest", zap.String("path", path))
		if w.onIngest != nil {
			w.onIngest(path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Stop stops the watcher and cancels pending debounce timers. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.watcher == nil {
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
}

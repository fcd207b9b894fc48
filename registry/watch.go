package registry

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lgc202/ai-kit/manifest"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher hot-reloads a manifest file into a Registry when it changes on
// disk. A failed reload keeps the previous snapshot active.
type Watcher struct {
	reg    *Registry
	path   string
	wait   time.Duration
	logger *slog.Logger
	onSwap func(old, new *manifest.Manifest)

	fw        *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// WatchOption customizes a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long to wait after the last file event before
// reloading. Editors often write a file several times per save.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.wait = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOnReload registers fn to run after each successful snapshot swap.
func WithOnReload(fn func(old, new *manifest.Manifest)) WatchOption {
	return func(w *Watcher) { w.onSwap = fn }
}

// Watch starts watching path and reloading it into reg. The parent
// directory is watched rather than the file itself, so atomic
// rename-into-place saves keep working.
func Watch(reg *Registry, path string, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		reg:    reg,
		path:   filepath.Clean(path),
		wait:   defaultDebounce,
		logger: slog.Default(),
		fw:     fw,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Close stops watching. It does not undo the last published snapshot.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("manifest watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.wait, w.reload)
	w.mu.Unlock()
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	old := w.reg.Current()
	if err := w.reg.ReloadFile(w.path); err != nil {
		w.logger.Warn("manifest reload failed, keeping previous snapshot",
			"path", w.path, "error", err)
		return
	}
	cur := w.reg.Current()
	w.logger.Info("manifest reloaded", "path", w.path, "version", cur.Version)
	if w.onSwap != nil {
		w.onSwap(old, cur)
	}
}

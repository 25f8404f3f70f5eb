package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk. Editors
// often write a file in several steps, so changes are debounced and only the
// settled file is parsed. The parent directory is watched so atomic
// rename-over saves are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	onError  func(error)
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOptions configure a Watcher. OnReload receives every config that
// parsed and validated; OnError receives load failures.
type WatcherOptions struct {
	Debounce time.Duration
	OnReload func(*Config)
	OnError  func(error)
	Logger   *slog.Logger
}

// NewWatcher prepares a watcher for path. Start begins watching.
func NewWatcher(path string, opts WatcherOptions) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher requires a path")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onReload: opts.OnReload,
		onError:  opts.OnError,
		logger:   logger,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch config directory: %w", err)
	}
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Debug("config watcher close failed", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	pending := w.pending
	if pending.IsZero() || now.Sub(pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	cfg, _, exists, err := Load(w.path)
	if err == nil && !exists {
		err = fmt.Errorf("config file %s disappeared", w.path)
	}
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

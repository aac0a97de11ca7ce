package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the config file and reloads it on modification. Polling
// keeps the watcher portable; config files change rarely enough that a
// per-second stat is free. A reload that fails to parse or validate keeps
// the previous configuration.
type Watcher struct {
	mu sync.Mutex

	loader   *Loader
	path     string
	interval time.Duration
	debounce time.Duration

	running  bool
	stopChan chan struct{}
	lastMod  time.Time

	onReload func(*Config)
	logger   *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// WithDebounce sets the quiet period after a change before reloading, so a
// half-written file is not picked up mid-save.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a watcher for the loader's config path. onReload
// receives each successfully reloaded configuration.
func NewWatcher(loader *Loader, onReload func(*Config), opts ...WatcherOption) (*Watcher, error) {
	if loader.configPath == "" {
		return nil, fmt.Errorf("loader has no config path to watch")
	}
	w := &Watcher{
		loader:   loader,
		path:     loader.configPath,
		interval: 1 * time.Second,
		debounce: 100 * time.Millisecond,
		stopChan: make(chan struct{}),
		onReload: onReload,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", w.path, err)
	} else {
		w.logger.Warn("config file does not exist yet, watching for creation",
			zap.String("path", w.path))
	}
	return w, nil
}

// Start begins polling until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.pollLoop(ctx)
	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop halts polling.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("config watcher stopped")
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if w.changed() {
				time.Sleep(w.debounce)
				w.reload()
			}
		}
	}
}

// changed stats the file and updates the recorded modification time.
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	mod := info.ModTime()
	if w.lastMod.IsZero() {
		// File created after the watcher started.
		w.lastMod = mod
		return true
	}
	if mod.After(w.lastMod) {
		w.lastMod = mod
		return true
	}
	return false
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload failed, keeping previous configuration",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config invalid, keeping previous configuration",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Package config – watcher.go hot-reloads the config file so prompt and
// access-list changes apply without a restart.
package config

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// watchInterval is how often the config file's mtime is polled.
const watchInterval = 5 * time.Second

// ReloadFunc receives the freshly loaded config.
type ReloadFunc func(cfg *Config)

// Watcher polls a config file and invokes callbacks on change.
type Watcher struct {
	path      string
	logger    *slog.Logger
	callbacks []ReloadFunc
	lastMod   time.Time
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		path:   path,
		logger: logger.With("component", "config"),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// OnReload registers a callback. Must be called before Start.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.callbacks = append(w.callbacks, fn)
}

// Start polls until the context ends. Reload failures keep the previous
// config and log the error.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	cfg, err := LoadConfigFromFile(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous", "error", err)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	for _, fn := range w.callbacks {
		fn(cfg)
	}
}

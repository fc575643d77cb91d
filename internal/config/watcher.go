package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is the polling interval of a [Watcher].
const DefaultWatchInterval = 5 * time.Second

// ErrUnchanged is returned by [Watcher.Reload] when the file content equals
// the current config's.
var ErrUnchanged = errors.New("config: file unchanged")

// Watcher keeps the last valid config of one file. [Watcher.Run] polls the
// file; [Watcher.Reload] re-reads it on demand (SIGHUP). Each accepted
// change is reported with its [ConfigDiff]; invalid content is rejected and
// the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(d ConfigDiff, cfg *Config)

	mu      sync.Mutex // serialises reloads and guards the fields below
	current *Config
	stamp   fileStamp
}

// fileStamp identifies one version of the file. The stat part makes the
// poll cheap; the hash tells a touch from an edit.
type fileStamp struct {
	mod  time.Time
	size int64
	hash [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval of [Watcher.Run].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher holding it. onChange may be
// nil. Nothing is polled until Run is called.
func NewWatcher(path string, onChange func(d ConfigDiff, cfg *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, stamp, err := w.read()
	if err != nil {
		return nil, err
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. Rejected content is logged.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !w.statChanged() {
			continue
		}
		if _, err := w.Reload(); err != nil && !errors.Is(err, ErrUnchanged) {
			slog.Warn("config: keeping previous config", "path", w.path, "err", err)
		}
	}
}

// Reload reads the file now. It returns ErrUnchanged when the content
// matches the current config and the load error when it is invalid; in both
// cases the current config is kept and onChange is not called.
func (w *Watcher) Reload() (ConfigDiff, error) {
	w.mu.Lock()
	cfg, stamp, err := w.read()
	if err != nil {
		// Remember the rejected version so Run does not retry it every tick.
		w.stamp.mod, w.stamp.size = stamp.mod, stamp.size
		w.mu.Unlock()
		return ConfigDiff{}, err
	}
	if stamp.hash == w.stamp.hash {
		w.stamp = stamp
		w.mu.Unlock()
		return ConfigDiff{}, ErrUnchanged
	}
	d := Diff(w.current, cfg)
	w.current, w.stamp = cfg, stamp
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path, "restart_required", d.RestartRequired)
	if w.onChange != nil {
		w.onChange(d, cfg)
	}
	return d, nil
}

func (w *Watcher) statChanged() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.stamp.mod) || info.Size() != w.stamp.size
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("config: %w", err)
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("config: %w", err)
	}
	stamp := fileStamp{mod: info.ModTime(), size: info.Size(), hash: sha256.Sum256(data)}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp, err
	}
	return cfg, stamp, nil
}

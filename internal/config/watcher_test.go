package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/toolhub/internal/config"
)

const (
	infoYAML    = "server:\n  log_level: info\ntools:\n  - {name: calculator, kind: builtin}\n"
	debugYAML   = "server:\n  log_level: debug\ntools:\n  - {name: calculator, kind: builtin}\n"
	toolsYAML   = "server:\n  log_level: info\ntools:\n  - {name: calculator, kind: builtin}\n  - {name: log_notifier, kind: builtin}\n"
	invalidYAML = "server:\n  log_level: bananas\n"
)

// writeConfig writes content with an explicit mtime so successive writes
// inside the filesystem's timestamp granularity are still told apart.
func writeConfig(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

// recorder collects onChange calls.
type recorder struct {
	mu    sync.Mutex
	diffs []config.ConfigDiff
}

func (r *recorder) onChange(d config.ConfigDiff, _ *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diffs = append(r.diffs, d)
}

func (r *recorder) snapshot() []config.ConfigDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.diffs)
}

func newWatcher(t *testing.T, content string) (*config.Watcher, string, *recorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, content, time.Now().Add(-time.Hour))
	var rec recorder
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, &rec
}

// ─── NewWatcher ──────────────────────────────────────────────────────────────

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	w, _, _ := newWatcher(t, infoYAML)
	if cfg := w.Current(); cfg == nil || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("Current = %+v", cfg)
	}

	dir := t.TempDir()
	if _, err := config.NewWatcher(filepath.Join(dir, "absent.yaml"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want os.ErrNotExist", err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	writeConfig(t, bad, invalidYAML, time.Now())
	if _, err := config.NewWatcher(bad, nil); err == nil {
		t.Error("invalid file: expected error")
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		next        string
		wantErr     bool
		wantUnch    bool
		wantLevel   config.LogLevel
		wantRestart []string
	}{
		{name: "log level", next: debugYAML, wantLevel: config.LogDebug},
		{name: "tool added", next: toolsYAML, wantLevel: config.LogInfo, wantRestart: []string{"tools"}},
		{name: "same content", next: infoYAML, wantUnch: true, wantLevel: config.LogInfo},
		{name: "invalid", next: invalidYAML, wantErr: true, wantLevel: config.LogInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, path, rec := newWatcher(t, infoYAML)
			writeConfig(t, path, tt.next, time.Now())

			d, err := w.Reload()
			switch {
			case tt.wantUnch:
				if !errors.Is(err, config.ErrUnchanged) {
					t.Fatalf("Reload err = %v, want ErrUnchanged", err)
				}
			case tt.wantErr:
				if err == nil || errors.Is(err, config.ErrUnchanged) {
					t.Fatalf("Reload err = %v, want load error", err)
				}
			default:
				if err != nil {
					t.Fatalf("Reload: %v", err)
				}
				if !slices.Equal(d.RestartRequired, tt.wantRestart) {
					t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.wantRestart)
				}
				if got := len(rec.snapshot()); got != 1 {
					t.Errorf("onChange called %d times, want 1", got)
				}
			}
			if (tt.wantUnch || tt.wantErr) && len(rec.snapshot()) != 0 {
				t.Error("onChange called for a rejected reload")
			}
			if got := w.Current().Server.LogLevel; got != tt.wantLevel {
				t.Errorf("Current log level = %s, want %s", got, tt.wantLevel)
			}
		})
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestWatcher_RunPicksUpEdits(t *testing.T) {
	t.Parallel()

	w, path, rec := newWatcher(t, infoYAML)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// An invalid edit is skipped; the following valid one is applied.
	writeConfig(t, path, invalidYAML, time.Now().Add(-30*time.Minute))
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("invalid edit reported %d changes", n)
	}
	writeConfig(t, path, debugYAML, time.Now())

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("edit not picked up")
		}
		time.Sleep(10 * time.Millisecond)
	}
	d := rec.snapshot()[0]
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	w, _, _ := newWatcher(t, infoYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

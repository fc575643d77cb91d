package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/toolhub/internal/config"
)

// ─── call ────────────────────────────────────────────────────────────────────

func TestCallCmd(t *testing.T) {
	t.Parallel()

	var got struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		TimeoutMS int64          `json:"timeout_ms"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools/run" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.Name == "missing" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"unknown tool: missing","kind":"unknown_tool"}`)
			return
		}
		io.WriteString(w, `{"result":42}`)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		wantOut string
	}{
		{
			name:    "with arguments",
			args:    []string{"call", "--addr", srv.URL + "/", "--token", "t0k", "--timeout", "2s", "calculator", `{"expression":"6*7"}`},
			wantOut: `"result": 42`,
		},
		{
			name:    "invalid json",
			args:    []string{"call", "--addr", srv.URL, "calculator", `{nope`},
			wantErr: true,
		},
		{
			name:    "hub error",
			args:    []string{"call", "--addr", srv.URL, "missing"},
			wantErr: true,
			wantOut: "unknown_tool",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Subtests share the recorder above, so they run in order.
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(io.Discard)
			root.SetArgs(tt.args)

			err := root.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.wantOut)
			}
		})
	}

	if got.Name != "missing" {
		t.Errorf("last request name = %q", got.Name)
	}
}

func TestCallCmd_SendsRequest(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"result":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"call", "--addr", srv.URL, "--token", "secret", "--timeout", "1500ms", "echo", `{"a":1}`})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer secret")
	}
	if body["name"] != "echo" {
		t.Errorf("name = %v, want echo", body["name"])
	}
	if body["timeout_ms"] != 1500.0 {
		t.Errorf("timeout_ms = %v, want 1500", body["timeout_ms"])
	}
	args, _ := body["arguments"].(map[string]any)
	if args["a"] != 1.0 {
		t.Errorf("arguments = %v, want {a:1}", body["arguments"])
	}
}

// ─── tools ───────────────────────────────────────────────────────────────────

func TestToolsCmd(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"tools"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	lines := strings.Split(out.String(), "\n")
	want := map[string]string{
		"calculator":    "ready",
		"human_input":   "ready",
		"read_file":     "unavailable",
		"hybrid_search": "unavailable",
	}
	for name, status := range want {
		found := false
		for _, l := range lines {
			f := strings.Fields(l)
			if len(f) >= 2 && f[0] == name {
				found = true
				if f[1] != status {
					t.Errorf("%s status = %q, want %q", name, f[1], status)
				}
			}
		}
		if !found {
			t.Errorf("%s missing from output:\n%s", name, out.String())
		}
	}
}

// ─── reload ──────────────────────────────────────────────────────────────────

func TestApplyReload(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	applyReload(level, config.ConfigDiff{})
	if level.Level() != slog.LevelInfo {
		t.Fatalf("empty diff changed level to %v", level.Level())
	}

	applyReload(level, config.ConfigDiff{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		RestartRequired: []string{"hub"},
	})
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

func TestToolserverRequiresConfig(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"toolserver"})
	if err := root.Execute(); err == nil {
		t.Fatal("toolserver without --config succeeded")
	}
}

func TestToolserverBadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("port: 0\ntool: calculator\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"toolserver", "--config", path})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "port") {
		t.Fatalf("Execute() = %v, want port error", err)
	}
}

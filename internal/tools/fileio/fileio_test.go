package fileio

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/toolhub/pkg/types"
)

func newSandbox(t *testing.T) *Sandbox {
	t.Helper()
	s, err := NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	return s
}

func strs(t *testing.T, v types.Value, key string) []string {
	t.Helper()
	f, ok := v.Field(key)
	if !ok {
		t.Fatalf("missing %q in %v", key, v)
	}
	arr, _ := f.Arr()
	out := make([]string, len(arr))
	for i, x := range arr {
		out[i], _ = x.Str()
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolve
// ─────────────────────────────────────────────────────────────────────────────

func TestResolve_Valid(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	cases := []struct {
		rel  string
		want string
	}{
		{"", s.Root()},
		{"file.txt", filepath.Join(s.Root(), "file.txt")},
		{"notes/day1.md", filepath.Join(s.Root(), "notes", "day1.md")},
		{"./a/b.json", filepath.Join(s.Root(), "a", "b.json")},
	}
	for _, tt := range cases {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := s.Resolve(tt.rel)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_Rejected(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	for _, rel := range []string{"../escape", "../../etc/passwd", "a/../b", "..", "/etc/passwd"} {
		t.Run(rel, func(t *testing.T) {
			if _, err := s.Resolve(rel); err == nil {
				t.Errorf("Resolve(%q) = nil error", rel)
			}
		})
	}
}

func TestNewSandbox_NotADirectory(t *testing.T) {
	t.Parallel()
	f := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSandbox(f); err == nil {
		t.Error("expected error for a file root")
	}
	if _, err := NewSandbox(filepath.Join(f, "missing")); err == nil {
		t.Error("expected error for a missing root")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tools
// ─────────────────────────────────────────────────────────────────────────────

func TestRoundTripMultibyte(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	ctx := context.Background()
	const content = "Grüße, 世界! 🎲\nline two"

	res, err := s.WriteFile().Run(ctx, types.Arguments{
		"path":    types.String("deep/nested/note.txt"),
		"content": types.String(content),
	})
	if err != nil || res.IsError() {
		t.Fatalf("write: %+v, %v", res, err)
	}
	n, _ := res.Value.Field("bytes_written")
	if got, _ := n.Integer(); got != int64(len(content)) {
		t.Errorf("bytes_written = %d, want %d", got, len(content))
	}

	res, err = s.ReadFile().Run(ctx, types.Arguments{"path": types.String("deep/nested/note.txt")})
	if err != nil || res.IsError() {
		t.Fatalf("read: %+v, %v", res, err)
	}
	if got, _ := res.Value.Str(); got != content {
		t.Errorf("read %q, want %q", got, content)
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	big := filepath.Join(s.Root(), "big.bin")
	if err := os.WriteFile(big, make([]byte, MaxReadBytes+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		path string
		want string
	}{
		{"missing.txt", "no such file"},
		{"big.bin", "too large"},
		{"dir", "is a directory"},
		{"../outside", "'..'"},
	}
	for _, tt := range cases {
		t.Run(tt.path, func(t *testing.T) {
			res, err := s.ReadFile().Run(context.Background(), types.Arguments{"path": types.String(tt.path)})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !strings.Contains(res.Err, tt.want) {
				t.Errorf("error = %q, want substring %q", res.Err, tt.want)
			}
		})
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	res, err := s.WriteFile().Run(context.Background(), types.Arguments{
		"path":    types.String("../evil.txt"),
		"content": types.String("x"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.IsError() {
		t.Fatal("expected tool error")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "evil.txt")); !os.IsNotExist(err) {
		t.Error("file was written outside the sandbox")
	}
}

func TestListDirectory(t *testing.T) {
	t.Parallel()
	s := newSandbox(t)
	for _, f := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(s.Root(), f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := s.ListDirectory().Run(context.Background(), types.Arguments{})
	if err != nil || res.IsError() {
		t.Fatalf("Run: %+v, %v", res, err)
	}
	if got := strs(t, *res.Value, "files"); !slices.Equal(got, []string{"a.txt", "b.txt"}) {
		t.Errorf("files = %v", got)
	}
	if got := strs(t, *res.Value, "directories"); !slices.Equal(got, []string{"sub"}) {
		t.Errorf("directories = %v", got)
	}

	res, _ = s.ListDirectory().Run(context.Background(), types.Arguments{"path": types.String("sub")})
	if got := strs(t, *res.Value, "files"); len(got) != 0 {
		t.Errorf("sub files = %v, want none", got)
	}
}

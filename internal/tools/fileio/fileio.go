// Package fileio provides the sandboxed file tools read_file, write_file and
// list_directory. Every path is resolved relative to a root directory; a
// path with a ".." component or one that escapes the root is rejected.
//
// All handlers are safe for concurrent use.
package fileio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Tool names.
const (
	ReadName  = "read_file"
	WriteName = "write_file"
	ListName  = "list_directory"
)

// MaxReadBytes is the largest file read_file returns.
const MaxReadBytes = 1 << 20

// Sandbox is a root directory the tools may not leave.
type Sandbox struct {
	root string
}

// NewSandbox returns a sandbox rooted at dir, which must exist.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("fileio: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fileio: root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fileio: root %q is not a directory", dir)
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Sandbox) Root() string { return s.root }

// Resolve maps rel to an absolute path inside the root. An empty rel is the
// root itself.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("fileio: path %q must be relative", rel)
	}
	if slices.Contains(strings.FieldsFunc(rel, isSep), "..") {
		return "", fmt.Errorf("fileio: path %q must not contain '..'", rel)
	}
	joined := filepath.Join(s.root, rel)
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("fileio: path %q escapes the sandbox directory", rel)
	}
	return joined, nil
}

func isSep(r rune) bool { return r == '/' || r == filepath.Separator }

func (s *Sandbox) resolveFile(args types.Arguments, key string) (string, error) {
	rel, _ := args.Str(key)
	if rel == "" {
		return "", fmt.Errorf("fileio: %s must not be empty", key)
	}
	return s.Resolve(rel)
}

// ReadFile returns the read_file tool.
func (s *Sandbox) ReadFile() *tool.Func {
	desc := types.ToolDescriptor{
		Name:        ReadName,
		Description: "Reads a text file inside the sandbox and returns its content. Files over 1 MiB are rejected.",
		Parameters: types.Parameters{
			{Name: "path", Type: types.TypeString, Description: "Path relative to the sandbox root.", Required: true},
		},
	}
	return tool.MustFunc(desc, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		abs, err := s.resolveFile(args, "path")
		if err != nil {
			return types.Value{}, err
		}
		if err := ctx.Err(); err != nil {
			return types.Value{}, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return types.Value{}, fmt.Errorf("fileio: read_file: %w", err)
		}
		if info.IsDir() {
			return types.Value{}, fmt.Errorf("fileio: read_file: %q is a directory", info.Name())
		}
		if info.Size() > MaxReadBytes {
			return types.Value{}, fmt.Errorf("fileio: read_file: file is too large (%d bytes, max %d)", info.Size(), MaxReadBytes)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return types.Value{}, fmt.Errorf("fileio: read_file: %w", err)
		}
		return types.String(string(data)), nil
	})
}

// WriteFile returns the write_file tool. Missing parent directories are
// created.
func (s *Sandbox) WriteFile() *tool.Func {
	desc := types.ToolDescriptor{
		Name:        WriteName,
		Description: "Writes text content to a file inside the sandbox, creating parent directories as needed.",
		Parameters: types.Parameters{
			{Name: "path", Type: types.TypeString, Description: "Path relative to the sandbox root.", Required: true},
			{Name: "content", Type: types.TypeString, Description: "Text to write.", Required: true},
		},
	}
	return tool.MustFunc(desc, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		abs, err := s.resolveFile(args, "path")
		if err != nil {
			return types.Value{}, err
		}
		content, _ := args.Str("content")
		if err := ctx.Err(); err != nil {
			return types.Value{}, err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return types.Value{}, fmt.Errorf("fileio: write_file: create directories: %w", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return types.Value{}, fmt.Errorf("fileio: write_file: %w", err)
		}
		rel, _ := args.Str("path")
		return types.Object(map[string]types.Value{
			"path":          types.String(rel),
			"bytes_written": types.Int(int64(len(content))),
		}), nil
	})
}

// ListDirectory returns the list_directory tool. Without a path it lists
// the root.
func (s *Sandbox) ListDirectory() *tool.Func {
	desc := types.ToolDescriptor{
		Name:        ListName,
		Description: "Lists the files and subdirectories of a directory inside the sandbox.",
		Parameters: types.Parameters{
			{Name: "path", Type: types.TypeString, Description: "Directory relative to the sandbox root. Defaults to the root."},
		},
	}
	return tool.MustFunc(desc, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		abs, err := s.Resolve(args.StrOr("path", ""))
		if err != nil {
			return types.Value{}, err
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return types.Value{}, fmt.Errorf("fileio: list_directory: %w", err)
		}
		// os.ReadDir sorts by name.
		files, dirs := []types.Value{}, []types.Value{}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, types.String(e.Name()))
			} else {
				files = append(files, types.String(e.Name()))
			}
		}
		return types.Object(map[string]types.Value{
			"files":       types.Array(files...),
			"directories": types.Array(dirs...),
		}), nil
	})
}

// Tools returns all three tools.
func (s *Sandbox) Tools() []*tool.Func {
	return []*tool.Func{s.ReadFile(), s.WriteFile(), s.ListDirectory()}
}

// Command toolhub runs the tool-invocation hub, hosts single tools as
// subprocesses and talks to a running hub from the shell.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/toolhub/internal/config"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolhub",
		Short: "Tool-invocation hub",
		Long: "toolhub registers heterogeneous tools (in-process, subprocess, HTTP, MCP)\n" +
			"behind one catalogue and dispatches calls to them.",
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(fmt.Sprintf("toolhub version %s\n", version))

	root.AddCommand(newServeCmd())
	root.AddCommand(newToolserverCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newCallCmd())
	return root
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The level lives in a LevelVar so a
// config reload can change it without rebuilding the handler.
func newLogger(w io.Writer, level *slog.LevelVar, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

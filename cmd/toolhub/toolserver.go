package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/toolhub/internal/app"
	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/rpc"
	"github.com/MrWong99/toolhub/internal/tools"
)

func newToolserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolserver",
		Short: "Host one built-in tool over gRPC for a hub to launch",
		Long: "toolserver serves a single built-in tool on the port named in its config\n" +
			"file. Any problem with the config file is fatal.",
		Args: cobra.NoArgs,
		RunE: runToolserver,
	}
	cmd.Flags().StringP("config", "c", "", "path to the subprocess config (YAML or JSON)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runToolserver(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	scfg, err := rpc.LoadServerConfig(configPath)
	if err != nil {
		return err
	}

	// Settings carries the tool sections (files, hybrid_search, ...) in hub
	// config format; without it the tool runs on defaults.
	hubCfg, err := loadSettings(scfg.Settings)
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(hubCfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(os.Stderr, level, hubCfg.Server.LogFormat).With("tool", scfg.Tool))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	// No broker in a subprocess: human_input is only served by the hub.
	deps, closeDeps, err := app.ToolDeps(ctx, hubCfg, reg, nil)
	defer func() {
		if err := closeDeps(); err != nil {
			slog.Warn("close tool dependencies", "err", err)
		}
	}()
	if err != nil {
		return err
	}
	t, err := tools.Build(scfg.Tool, deps)
	if err != nil {
		return err
	}

	srv := rpc.NewServerState(scfg, t)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("toolserver: stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func loadSettings(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("settings file %q not found", path)
	}
	return cfg, err
}

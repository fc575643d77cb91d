package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/toolhub/internal/app"
	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings/hashing"
	oaembed "github.com/MrWong99/toolhub/pkg/provider/embeddings/openai"
	"github.com/MrWong99/toolhub/pkg/store"
	"github.com/MrWong99/toolhub/pkg/store/postgres"
	"github.com/MrWong99/toolhub/pkg/store/sqlite"
	"github.com/MrWong99/toolhub/pkg/store/vectorfile"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().Duration("watch-interval", config.DefaultWatchInterval, "config reload polling interval (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	watchInterval, _ := cmd.Flags().GetDuration("watch-interval")

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
		}
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(os.Stderr, level, cfg.Server.LogFormat))

	slog.Info("toolhub starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provCfg := observe.ProviderConfig{
		ServiceName:    "toolhub",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	}
	if ep := cfg.Server.OTLPEndpoint; ep != "" {
		exp, err := observe.NewOTLPExporter(ctx, ep)
		if err != nil {
			return fmt.Errorf("otlp exporter: %w", err)
		}
		provCfg.TraceExporter = exp
		slog.Info("exporting traces", "endpoint", ep)
	}
	otelShutdown, err := observe.InitProvider(ctx, provCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Backend registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)
	slog.Debug("backends registered", "names", reg.Names())

	// ── Config watcher ────────────────────────────────────────────────────────
	// Only the log level applies live. SIGHUP forces a reload between polls.
	watcher, err := config.NewWatcher(configPath, func(d config.ConfigDiff, _ *config.Config) {
		applyReload(level, d)
	}, config.WithInterval(watchInterval))
	if err != nil {
		return err
	}
	if watchInterval > 0 {
		go watcher.Run(ctx)
	}
	go reloadOnHangup(ctx, watcher)

	application, err := app.New(ctx, cfg,
		app.WithRegistry(reg),
		app.WithMetricsHandler(promhttp.Handler()),
		app.WithConsole(os.Stdin, os.Stdout),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("goodbye")
	return runErr
}

// applyReload applies what can change live and reports the rest.
func applyReload(level *slog.LevelVar, d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	for _, tc := range d.ToolChanges {
		slog.Warn("tool configuration changed, restart to apply",
			"tool", tc.Name, "added", tc.Added, "removed", tc.Removed, "modified", tc.Modified)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changed, restart to apply", "sections", d.RestartRequired)
	}
}

func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := w.Reload(); err != nil && !errors.Is(err, config.ErrUnchanged) {
				slog.Warn("reload on SIGHUP rejected", "err", err)
			}
		}
	}
}

// ── Backend wiring ────────────────────────────────────────────────────────────

// registerBuiltinBackends wires the embeddings providers and stores that
// ship with toolhub into reg.
func registerBuiltinBackends(reg *config.Registry) {
	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(c config.EmbeddingsConfig) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if c.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(c.BaseURL))
		}
		if c.Dimensions > 0 {
			opts = append(opts, oaembed.WithDimensions(c.Dimensions))
		}
		return oaembed.New(c.APIKey, c.Model, opts...)
	})

	// hashing needs no network; handy for demos and air-gapped setups.
	reg.RegisterEmbeddings("hashing", func(c config.EmbeddingsConfig) (embeddings.Provider, error) {
		return hashing.New(c.Dimensions), nil
	})

	// ── Semantic stores ───────────────────────────────────────────────────────

	reg.RegisterSemantic("file", func(ctx context.Context, c config.SemanticStoreConfig, p embeddings.Provider) (store.SemanticStore, error) {
		return vectorfile.Load(ctx, c.Path, p)
	})

	reg.RegisterSemantic("postgres", func(ctx context.Context, c config.SemanticStoreConfig, p embeddings.Provider) (store.SemanticStore, error) {
		pool, err := postgres.Connect(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		s, err := postgres.NewSemantic(pool, postgres.SemanticConfig{Table: c.Table, OwnPool: true})
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.Migrate(ctx, p.Dimensions()); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	})

	// ── Relational stores ─────────────────────────────────────────────────────

	reg.RegisterRelational("sqlite", func(ctx context.Context, c config.RelationalStoreConfig) (store.RelationalStore, error) {
		return sqlite.Open(ctx, sqlite.Config{Path: c.Path, Table: c.Table, IDField: c.IDColumn})
	})

	reg.RegisterRelational("postgres", func(ctx context.Context, c config.RelationalStoreConfig) (store.RelationalStore, error) {
		pool, err := postgres.Connect(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		r, err := postgres.NewRelational(ctx, pool, postgres.RelationalConfig{
			Table:   c.Table,
			IDField: c.IDColumn,
			OwnPool: true,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		return r, nil
	})
}

// Package app wires all toolhub subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the backends, tools,
// hub and front ends, Run serves until the context ends, and Shutdown tears
// everything down in reverse order.
//
// For testing, inject doubles via functional options (WithRegistry,
// WithAdapters, WithListener, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/health"
	"github.com/MrWong99/toolhub/internal/httpapi"
	"github.com/MrWong99/toolhub/internal/hub"
	"github.com/MrWong99/toolhub/internal/mcp"
	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/operator"
	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/rpc"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/tools"
	"github.com/MrWong99/toolhub/internal/workerpool"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	backends *config.Registry
	metrics  *observe.Metrics

	metricsHandler http.Handler
	consoleIn      io.Reader
	consoleOut     io.Writer
	extra          []tool.Adapter
	listener       net.Listener

	// Subsystems, initialised in New and torn down in Shutdown.
	broker  *rendezvous.Broker
	hub     *hub.Hub
	monitor *health.Monitor
	console *operator.Console
	server  *http.Server

	// closers run in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry supplies the backend registry used to build embeddings and
// stores. Default: an empty registry, which only works when hybrid_search
// is not configured.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.backends = r }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics, usually promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConsole sets the operator console streams. Default: none, so
// operator.console in the config has no effect.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) { a.consoleIn, a.consoleOut = in, out }
}

// WithAdapters registers extra adapters alongside the configured tools.
func WithAdapters(adapters ...tool.Adapter) Option {
	return func(a *App) { a.extra = append(a.extra, adapters...) }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: store connection, tool
// discovery (subprocess launch and MCP handshakes included), registry
// sealing and router assembly. A failure closes whatever was already built.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.backends == nil {
		a.backends = config.NewRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	// ── 1. Rendezvous broker ─────────────────────────────────────────────
	a.broker = rendezvous.NewBroker(rendezvous.WithHooks(rendezvous.Hooks{
		Opened: func() { a.metrics.PendingTickets.Add(context.Background(), 1) },
		Closed: func(outcome rendezvous.State) {
			a.metrics.RecordTicketClosed(context.Background(), string(outcome))
		},
	}))

	// ── 2. Tool dependencies ─────────────────────────────────────────────
	deps, closeDeps, err := ToolDeps(ctx, cfg, a.backends, a.broker)
	a.closers = append(a.closers, closeDeps)
	if err != nil {
		return nil, fmt.Errorf("app: init tool dependencies: %w", err)
	}

	// ── 3. Registry + hub ────────────────────────────────────────────────
	reg := hub.NewRegistry(hub.WithStatsWindow(cfg.Hub.StatsWindow))
	a.closers = append(a.closers, reg.Close)
	adapters, err := a.buildAdapters(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	if err := reg.AddAll(ctx, adapters); err != nil {
		for _, ad := range adapters {
			_ = ad.Close()
		}
		return nil, fmt.Errorf("app: register tools: %w", err)
	}
	pool := workerpool.New("hub", cfg.Hub.MaxConcurrency, workerpool.WithObserver(a.metrics.PoolObserver("hub")))
	a.hub = hub.New(reg,
		hub.WithPool(pool),
		hub.WithDefaultTimeout(cfg.Hub.DefaultTimeout),
		hub.WithMetrics(a.metrics),
	)
	slog.Info("tools registered", "count", reg.Len(), "names", reg.Names())

	// ── 4. Health monitor ────────────────────────────────────────────────
	var targets []health.Target
	for _, pt := range reg.ProbeTargets() {
		targets = append(targets, health.Target(pt))
	}
	a.monitor = health.NewMonitor(targets,
		health.WithInterval(cfg.Health.Interval),
		health.OnTransition(func(name string, _, to tool.Liveness) {
			a.metrics.RecordLiveness(context.Background(), name, to.String())
		}),
	)

	// ── 5. Operator surfaces ─────────────────────────────────────────────
	ops := &operator.Handlers{Broker: a.broker}
	if cfg.Operator.WebSocket {
		ops.Bridge = operator.NewBridge(a.broker, cfg.Operator.Origins...)
	}
	if cfg.Operator.Console && a.consoleIn != nil {
		a.console = operator.NewConsole(a.broker, a.consoleIn, a.consoleOut)
	}

	// ── 6. HTTP gateway ──────────────────────────────────────────────────
	router := httpapi.NewRouter(httpapi.Config{
		CORSOrigins: cfg.Server.CORSOrigins,
		JWTSecret:   cfg.Server.JWTSecret,
	}, httpapi.Deps{
		Hub:            a.hub,
		Operator:       ops,
		Health:         health.New(a.monitor.Checker(), registryChecker(reg)),
		MCP:            mcp.Handler(mcp.NewServer(a.hub)),
		Metrics:        a.metrics,
		MetricsHandler: a.metricsHandler,
	})
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// Hub returns the dispatch hub.
func (a *App) Hub() *hub.Hub { return a.hub }

// Broker returns the rendezvous broker behind human_input.
func (a *App) Broker() *rendezvous.Broker { return a.broker }

// Handler returns the HTTP gateway.
func (a *App) Handler() http.Handler { return a.server.Handler }

// ─── Init helpers ────────────────────────────────────────────────────────────

// buildAdapters turns the tools section into adapters. With no tools
// configured every built-in whose dependencies are present is registered.
func (a *App) buildAdapters(ctx context.Context, deps tools.Deps) ([]tool.Adapter, error) {
	var out []tool.Adapter
	if len(a.cfg.Tools) == 0 {
		for _, f := range tools.BuildAvailable(deps) {
			out = append(out, f)
		}
		return append(out, a.extra...), nil
	}

	for _, tc := range a.cfg.Tools {
		built, err := a.buildTool(ctx, tc, deps)
		if err != nil {
			for _, ad := range out {
				_ = ad.Close()
			}
			return nil, fmt.Errorf("tool %q: %w", tc.Name, err)
		}
		out = append(out, built...)
	}
	return append(out, a.extra...), nil
}

func (a *App) buildTool(ctx context.Context, tc config.ToolConfig, deps tools.Deps) ([]tool.Adapter, error) {
	switch tc.Kind {
	case config.ToolBuiltin:
		f, err := tools.Build(tc.BuiltinName(), deps)
		if err != nil {
			return nil, err
		}
		return []tool.Adapter{f}, nil

	case config.ToolSubprocess:
		ccfg := rpc.ClientConfig{
			Address:        tc.Address,
			CallTimeout:    tc.CallTimeout,
			DefaultTimeout: tc.DefaultTimeout,
		}
		var (
			c   *rpc.Client
			err error
		)
		if tc.Command != "" {
			c, err = rpc.Launch(ctx, rpc.LaunchConfig{
				Command: strings.Fields(tc.Command),
				Env:     envList(tc.Env),
				Port:    tc.Port,
				Client:  ccfg,
			})
		} else {
			c, err = rpc.DialReady(ctx, ccfg, 0, 0)
		}
		if err != nil {
			return nil, err
		}
		return []tool.Adapter{c}, nil

	case config.ToolHTTP:
		r, err := tool.NewRemote(tool.RemoteConfig{
			Descriptor: tc.Descriptor(),
			URL:        tc.URL,
			Method:     tc.Method,
			Headers:    tc.Headers,
			Timeout:    tc.DefaultTimeout,
		})
		if err != nil {
			return nil, err
		}
		return []tool.Adapter{r}, nil

	case config.ToolMCP:
		conn, err := mcp.Connect(ctx, mcp.ServerConfig{
			Name:      tc.Name,
			Transport: tc.Transport,
			Command:   tc.Command,
			Env:       tc.Env,
			URL:       tc.URL,
		})
		if err != nil {
			return nil, err
		}
		var out []tool.Adapter
		for _, ad := range conn.Adapters() {
			out = append(out, ad)
		}
		if len(out) == 0 {
			_ = conn.Close()
			slog.Warn("mcp server offers no tools", "server", tc.Name)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown kind %q", tc.Kind)
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func registryChecker(reg *hub.Registry) health.Checker {
	return health.Checker{
		Name: "registry",
		Check: func(context.Context) error {
			if !reg.Sealed() {
				return errors.New("registry not sealed")
			}
			if reg.Len() == 0 {
				return errors.New("no tools registered")
			}
			return nil
		},
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, polls subprocess health and, when enabled, reads the
// operator console. It blocks until ctx is cancelled or the server fails;
// cancellation is a clean stop and returns nil.
func (a *App) Run(ctx context.Context) error {
	lis := a.listener
	if lis == nil {
		var err error
		lis, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}
	slog.Info("http gateway listening", "addr", lis.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.monitor.Run(gctx)
		return nil
	})
	if a.console != nil {
		go func() {
			// The console blocks on stdin, which cannot be interrupted; it
			// is not part of the group so Run can return without it.
			if err := a.console.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("operator console stopped", "err", err)
			}
		}()
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and closes tools and stores in reverse
// init order. It respects the context deadline: remaining closers are
// skipped once ctx expires. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs every closer; used when New fails halfway.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package hub is the dispatch center of toolhub.
//
// A [Hub] owns a sealed [Registry] of tool adapters. [Hub.Dispatch] resolves
// a tool by name, validates the arguments against the cached descriptor,
// takes a slot from the worker pool, confirms liveness for subprocess-backed
// tools, runs the adapter under a deadline and returns the adapter's result
// envelope unchanged. Every failure is classified as one of the kinds in
// package tool and is scoped to the single call.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/MrWong99/toolhub/internal/observe"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/workerpool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// DefaultTimeout applies when neither the caller nor the tool sets one.
const DefaultTimeout = 30 * time.Second

// timeoutHinter is implemented by adapters that declare their own default
// deadline (human input waits far longer than a calculator).
type timeoutHinter interface {
	DefaultTimeout() time.Duration
}

// Hub dispatches calls to registered tools. It is safe for concurrent use.
type Hub struct {
	reg            *Registry
	pool           *workerpool.Pool
	defaultTimeout time.Duration
	metrics        *observe.Metrics
}

// Option configures a [Hub].
type Option func(*Hub)

// WithPool bounds concurrent calls with p. Without it the hub creates a pool
// of [workerpool.DefaultSize] slots.
func WithPool(p *workerpool.Pool) Option {
	return func(h *Hub) { h.pool = p }
}

// WithDefaultTimeout overrides [DefaultTimeout].
func WithDefaultTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.defaultTimeout = d
		}
	}
}

// WithMetrics records call metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New seals reg and returns a hub serving it.
func New(reg *Registry, opts ...Option) *Hub {
	reg.Seal()
	h := &Hub{reg: reg, defaultTimeout: DefaultTimeout}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	if h.pool == nil {
		h.pool = workerpool.New("hub", workerpool.DefaultSize, workerpool.WithObserver(h.metrics.PoolObserver("hub")))
	}
	return h
}

// Registry returns the hub's registry.
func (h *Hub) Registry() *Registry { return h.reg }

// Pool returns the hub's worker pool.
func (h *Hub) Pool() *workerpool.Pool { return h.pool }

// Tools lists every registered descriptor sorted by name.
func (h *Hub) Tools() []types.ToolDescriptor { return h.reg.Descriptors() }

// Describe returns the cached descriptor of one tool.
func (h *Hub) Describe(name string) (types.ToolDescriptor, bool) { return h.reg.Descriptor(name) }

// Dispatch calls the named tool.
//
// On success the returned envelope is exactly what the adapter produced: a
// value, or a tool-level error message. A non-nil error means the call never
// produced an envelope and is one of the [tool.Error] kinds unknown_tool,
// validation, transport or timeout.
//
// timeout bounds the whole call including the wait for a worker slot. Zero
// selects the tool's declared default, then the hub default.
func (h *Hub) Dispatch(ctx context.Context, name string, args types.Arguments, timeout time.Duration) (types.Result, error) {
	e, ok := h.reg.lookup(name)
	if !ok {
		h.metrics.RecordToolCall(ctx, name, "", string(tool.KindUnknownTool), 0)
		return types.Result{}, tool.UnknownTool(name)
	}
	kind := string(e.adapter.Kind())

	if err := tool.ValidateArgs(e.desc, args); err != nil {
		h.metrics.RecordToolCall(ctx, name, kind, string(tool.KindValidation), 0)
		return types.Result{}, err
	}

	ctx, span := observe.StartToolSpan(ctx, name, kind)

	start := time.Now()
	res, err := h.run(ctx, e, args, h.resolveTimeout(e, timeout))
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = string(tool.KindOf(err))
		observe.Logger(ctx).Warn("tool call failed",
			"tool", name, "adapter", kind, "kind", outcome, "err", err, "elapsed", elapsed)
	case res.IsError():
		outcome = "tool_error"
		observe.Logger(ctx).Debug("tool reported an error",
			"tool", name, "adapter", kind, "error", res.Err, "elapsed", elapsed)
	default:
		observe.Logger(ctx).Debug("tool call completed", "tool", name, "adapter", kind, "elapsed", elapsed)
	}
	observe.EndToolSpan(span, outcome, err)
	e.window.record(elapsed, outcome != "ok")
	h.metrics.RecordToolCall(ctx, name, kind, outcome, elapsed.Seconds())
	return res, err
}

func (h *Hub) resolveTimeout(e *entry, requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if th, ok := e.adapter.(timeoutHinter); ok && th.DefaultTimeout() > 0 {
		return th.DefaultTimeout()
	}
	return h.defaultTimeout
}

func (h *Hub) run(ctx context.Context, e *entry, args types.Arguments, timeout time.Duration) (types.Result, error) {
	name := e.desc.Name
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	release, err := h.pool.Acquire(ctx)
	if err != nil {
		return types.Result{}, tool.Timeout(name, err)
	}
	lease := tool.NewLease(release)
	defer lease.Done()
	ctx = tool.WithLease(ctx, lease)

	if p, ok := e.adapter.(tool.Prober); ok && p.Liveness() != tool.LivenessServing {
		if state := p.Probe(ctx); state != tool.LivenessServing {
			return types.Result{}, tool.Transport(name, fmt.Errorf("subprocess is %s", state))
		}
	}

	res, err := safeRun(ctx, e.adapter, args)
	if err != nil {
		return types.Result{}, classify(ctx, name, err)
	}
	if !res.Valid() {
		slog.Error("hub: adapter returned an invalid envelope", "tool", name)
		return types.Fail("invalid result envelope"), nil
	}
	return res, nil
}

// safeRun converts a panic escaping the adapter into an error envelope.
func safeRun(ctx context.Context, a tool.Adapter, args types.Arguments) (res types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("hub: adapter panicked", "panic", r, "stack", string(debug.Stack()))
			res, err = types.Failf("panic: %v", r), nil
		}
	}()
	return a.Run(ctx, args)
}

// classify maps an adapter error onto the taxonomy. Classified errors pass
// through; anything else is a deadline if the call context expired and a
// transport failure otherwise.
func classify(ctx context.Context, name string, err error) error {
	var te *tool.Error
	if errors.As(err, &te) {
		if te.Tool == "" {
			te.Tool = name
		}
		return te
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return tool.Timeout(name, err)
	}
	return tool.Transport(name, err)
}

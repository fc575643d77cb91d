package tool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/MrWong99/toolhub/pkg/types"
)

// HandlerFunc implements a tool in the hub's own process. A returned error is
// reported to the caller as a tool-level failure; it never becomes a
// transport or timeout error.
type HandlerFunc func(ctx context.Context, args types.Arguments) (types.Value, error)

// Func is an in-process adapter.
//
// The handler runs on its own goroutine so that a call whose context expires
// is abandoned without waiting for the handler to return. An abandoned
// handler keeps the call's [Lease] until it finishes, so it still counts
// against the worker pool. Panics inside the handler are recovered and
// converted into the error envelope.
type Func struct {
	desc    types.ToolDescriptor
	handler HandlerFunc
	timeout time.Duration
}

var _ Adapter = (*Func)(nil)

// FuncOption configures a [Func].
type FuncOption func(*Func)

// WithDefaultTimeout declares the deadline the hub should use when a caller
// does not supply one.
func WithDefaultTimeout(d time.Duration) FuncOption {
	return func(f *Func) { f.timeout = d }
}

// NewFunc wraps handler as an adapter for desc.
func NewFunc(desc types.ToolDescriptor, handler HandlerFunc, opts ...FuncOption) (*Func, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("tool: %w", err)
	}
	if handler == nil {
		return nil, fmt.Errorf("tool: %q has a nil handler", desc.Name)
	}
	f := &Func{desc: desc, handler: handler}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// MustFunc is like [NewFunc] but panics on error. Used for static tool tables.
func MustFunc(desc types.ToolDescriptor, handler HandlerFunc, opts ...FuncOption) *Func {
	f, err := NewFunc(desc, handler, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Describe returns the static descriptor.
func (f *Func) Describe(context.Context) (types.ToolDescriptor, error) { return f.desc, nil }

// Kind returns [KindInProcess].
func (f *Func) Kind() AdapterKind { return KindInProcess }

// DefaultTimeout returns the declared default deadline, or zero.
func (f *Func) DefaultTimeout() time.Duration { return f.timeout }

// Close is a no-op.
func (f *Func) Close() error { return nil }

// Run invokes the handler and waits for it or for ctx, whichever finishes
// first.
func (f *Func) Run(ctx context.Context, args types.Arguments) (types.Result, error) {
	done := make(chan types.Result, 1)
	finished := LeaseFrom(ctx).Extend()
	go func() {
		defer finished()
		done <- f.invoke(ctx, args)
	}()

	select {
	case res := <-done:
		if res.IsError() && ctx.Err() != nil {
			return types.Result{}, Timeout(f.desc.Name, ctx.Err())
		}
		return res, nil
	case <-ctx.Done():
		slog.Debug("tool: abandoning in-process call", "tool", f.desc.Name, "err", ctx.Err())
		return types.Result{}, Timeout(f.desc.Name, ctx.Err())
	}
}

func (f *Func) invoke(ctx context.Context, args types.Arguments) (res types.Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool: handler panicked", "tool", f.desc.Name, "panic", r, "stack", string(debug.Stack()))
			res = types.Failf("panic: %v", r)
		}
	}()
	v, err := f.handler(ctx, args)
	if err != nil {
		return types.Fail(err.Error())
	}
	return types.OK(v)
}

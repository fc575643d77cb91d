package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// entry is one registered tool. The descriptor is cached at registration
// time; the adapter is owned by the registry and closed by [Registry.Close].
type entry struct {
	desc    types.ToolDescriptor
	adapter tool.Adapter
	window  *callWindow
}

// Registry maps tool names to adapters.
//
// It has two phases. During startup a single goroutine calls [Registry.Add]
// and [Registry.AddAll]. [Registry.Seal] then freezes it; after that the map
// is never written again, so [Registry.lookup] and the listing methods need
// no lock and may be called from any number of goroutines.
type Registry struct {
	entries    map[string]*entry
	names      []string
	sealed     atomic.Bool
	windowSize int
}

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithStatsWindow sets how many recent calls per tool feed latency
// percentiles and the error rate. Default: 100.
func WithStatsWindow(n int) RegistryOption {
	return func(r *Registry) { r.windowSize = n }
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: make(map[string]*entry), windowSize: 100}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ErrSealed is returned when adding to a registry after [Registry.Seal].
var ErrSealed = errors.New("hub: registry is sealed")

// Add describes the adapter and registers it under the descriptor's name.
// Names must be unique.
func (r *Registry) Add(ctx context.Context, a tool.Adapter) error {
	desc, err := a.Describe(ctx)
	if err != nil {
		return fmt.Errorf("hub: describe %s adapter: %w", a.Kind(), err)
	}
	return r.add(desc, a)
}

// AddAll describes all adapters concurrently, then registers them in the
// given order. Describing a subprocess or MCP adapter is a network round
// trip, so a large catalogue starts noticeably faster this way.
func (r *Registry) AddAll(ctx context.Context, adapters []tool.Adapter) error {
	descs := make([]types.ToolDescriptor, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			d, err := a.Describe(gctx)
			if err != nil {
				return fmt.Errorf("hub: describe %s adapter #%d: %w", a.Kind(), i, err)
			}
			descs[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, a := range adapters {
		if err := r.add(descs[i], a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) add(desc types.ToolDescriptor, a tool.Adapter) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	if _, dup := r.entries[desc.Name]; dup {
		return fmt.Errorf("hub: duplicate tool name %q", desc.Name)
	}
	r.entries[desc.Name] = &entry{desc: desc, adapter: a, window: newCallWindow(r.windowSize)}
	r.names = append(r.names, desc.Name)
	slices.Sort(r.names)
	return nil
}

// Seal freezes the registry. It is idempotent.
func (r *Registry) Seal() { r.sealed.Store(true) }

// Sealed reports whether [Registry.Seal] has been called.
func (r *Registry) Sealed() bool { return r.sealed.Load() }

func (r *Registry) lookup(name string) (*entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.entries) }

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Descriptor returns the cached descriptor for name.
func (r *Registry) Descriptor(name string) (types.ToolDescriptor, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return types.ToolDescriptor{}, false
	}
	return e.desc, true
}

// Descriptors returns all cached descriptors sorted by name.
func (r *Registry) Descriptors() []types.ToolDescriptor {
	out := make([]types.ToolDescriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.entries[n].desc)
	}
	return out
}

// ProbeTarget pairs a tool name with an adapter that tracks liveness.
type ProbeTarget struct {
	Name   string
	Prober tool.Prober
}

// ProbeTargets returns every registered adapter that implements
// [tool.Prober], sorted by name.
func (r *Registry) ProbeTargets() []ProbeTarget {
	var out []ProbeTarget
	for _, n := range r.names {
		if p, ok := r.entries[n].adapter.(tool.Prober); ok {
			out = append(out, ProbeTarget{Name: n, Prober: p})
		}
	}
	return out
}

// Stats returns a snapshot of per-tool call statistics sorted by name.
func (r *Registry) Stats() []ToolStats {
	out := make([]ToolStats, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.entries[n].window.snapshot(n))
	}
	return out
}

// Close closes every adapter. Adapters shared by several tools (one MCP
// session serving many tools) must tolerate repeated Close calls.
func (r *Registry) Close() error {
	var errs []error
	for _, n := range r.names {
		if err := r.entries[n].adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

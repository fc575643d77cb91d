package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/toolhub/internal/tool"
)

// DefaultInterval is the polling period of [Monitor].
const DefaultInterval = 10 * time.Second

// Target is one probed tool.
type Target struct {
	Name   string
	Prober tool.Prober
}

// Monitor polls subprocess-backed tools and logs liveness transitions. A
// tool that stops answering is logged and marked unreachable; the monitor
// never restarts it.
type Monitor struct {
	targets  []Target
	interval time.Duration
	onChange func(name string, from, to tool.Liveness)

	mu   sync.Mutex
	last map[string]tool.Liveness
}

// MonitorOption configures a [Monitor].
type MonitorOption func(*Monitor)

// WithInterval overrides [DefaultInterval].
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// OnTransition installs a callback invoked after every state change.
func OnTransition(fn func(name string, from, to tool.Liveness)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// NewMonitor builds a monitor for targets.
func NewMonitor(targets []Target, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		targets:  append([]Target(nil), targets...),
		interval: DefaultInterval,
		last:     make(map[string]tool.Liveness, len(targets)),
	}
	for _, t := range targets {
		m.last[t.Name] = t.Prober.Liveness()
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run polls until ctx is cancelled. It probes once immediately.
func (m *Monitor) Run(ctx context.Context) {
	if len(m.targets) == 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll probes every target once.
func (m *Monitor) Poll(ctx context.Context) {
	for _, t := range m.targets {
		if ctx.Err() != nil {
			return
		}
		m.observe(t.Name, t.Prober.Probe(ctx))
	}
}

func (m *Monitor) observe(name string, now tool.Liveness) {
	m.mu.Lock()
	prev := m.last[name]
	m.last[name] = now
	m.mu.Unlock()
	if prev == now {
		return
	}
	if now == tool.LivenessUnreachable {
		slog.Warn("health: tool subprocess unreachable", "tool", name, "was", prev.String())
	} else {
		slog.Info("health: tool subprocess state changed", "tool", name, "from", prev.String(), "to", now.String())
	}
	if m.onChange != nil {
		m.onChange(name, prev, now)
	}
}

// States returns the last observed state per tool.
func (m *Monitor) States() map[string]tool.Liveness {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]tool.Liveness, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}

// Checker reports failure while any target is not serving. Use it for
// /readyz.
func (m *Monitor) Checker() Checker {
	return Checker{
		Name: "subprocesses",
		Check: func(context.Context) error {
			var down []string
			for name, st := range m.States() {
				if st != tool.LivenessServing {
					down = append(down, fmt.Sprintf("%s=%s", name, st))
				}
			}
			if len(down) == 0 {
				return nil
			}
			slices.Sort(down)
			return errors.New(strings.Join(down, ", "))
		},
	}
}

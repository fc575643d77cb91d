// Package resilience guards calls to remote tool endpoints.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open). When
// an HTTP-backed tool keeps failing at the transport level the breaker opens
// and further calls fail fast with [ErrCircuitOpen] instead of waiting for
// another timeout. [BreakerSet] keeps one breaker per key, typically a host
// name, for tools that talk to arbitrary endpoints.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the guarded function while the
// breaker is open or its half-open probe budget is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take defaults.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive counted failures that opens
	// the breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before letting probes
	// through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 2.
	HalfOpenMax int

	// IsFailure decides whether an error returned by the guarded function
	// counts against the breaker. Default: every non-nil error except
	// context cancellation by the caller.
	IsFailure func(error) bool
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probesInFlight  int
	probeSuccesses  int
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		now:          time.Now,
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Do runs fn unless the breaker rejects the call. The error from fn is
// returned unchanged.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(probe, b.isFailure(err))
	return err
}

// admit decides whether a call may proceed and whether it is a half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probesInFlight = 0
		b.probeSuccesses = 0
		slog.Info("circuit breaker half-open", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probesInFlight >= b.halfOpenMax {
			return false, ErrCircuitOpen
		}
		b.probesInFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probesInFlight--
		if b.state != StateHalfOpen {
			// Another probe already decided the outcome.
			return
		}
		if failed {
			b.trip("probe failed")
			return
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.halfOpenMax {
			b.state = StateClosed
			b.consecutiveFail = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}

	if !failed {
		b.consecutiveFail = 0
		return
	}
	b.consecutiveFail++
	if b.state == StateClosed && b.consecutiveFail >= b.maxFailures {
		b.trip("consecutive failures")
	}
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.openedAt = b.now()
	slog.Warn("circuit breaker opened",
		"name", b.name,
		"reason", reason,
		"consecutive_failures", b.consecutiveFail)
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
	b.probesInFlight = 0
	b.probeSuccesses = 0
}

// BreakerSet lazily creates one [Breaker] per key, all sharing a config.
type BreakerSet struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet returns an empty set.
func NewBreakerSet(cfg Config) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (s *BreakerSet) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	cfg := s.cfg
	if cfg.Name == "" {
		cfg.Name = key
	} else {
		cfg.Name = cfg.Name + ":" + key
	}
	b := New(cfg)
	s.breakers[key] = b
	return b
}

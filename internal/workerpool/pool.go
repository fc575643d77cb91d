// Package workerpool bounds how many tool calls execute at once.
//
// A [Pool] hands out slots from a weighted semaphore. Slow calls such as
// human-input rendezvous hold their slot for as long as they wait, so a pool
// can be exhausted by blocked calls; [Pool.InUse] and [Pool.Waiting] expose
// that pressure to metrics and logs.
package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 16

// Pool is a bounded set of worker slots. It is safe for concurrent use.
type Pool struct {
	name    string
	size    int64
	sem     *semaphore.Weighted
	inUse   atomic.Int64
	waiting atomic.Int64

	// onChange, when set, observes every change of the in-use count.
	onChange func(delta int64)
}

// Option configures a [Pool].
type Option func(*Pool)

// WithObserver registers fn to be called with +1/-1 whenever a slot is taken
// or returned. It is used to feed an up/down counter.
func WithObserver(fn func(delta int64)) Option {
	return func(p *Pool) { p.onChange = fn }
}

// New creates a pool with size slots.
func New(name string, size int, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		name: name,
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// function must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	p.waiting.Add(1)
	err = p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return nil, fmt.Errorf("workerpool %s: %d/%d slots busy: %w", p.name, p.inUse.Load(), p.size, err)
	}
	p.inUse.Add(1)
	if p.onChange != nil {
		p.onChange(1)
	}

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		p.inUse.Add(-1)
		if p.onChange != nil {
			p.onChange(-1)
		}
		p.sem.Release(1)
	}, nil
}

// Do runs fn on the caller's goroutine while holding a slot.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Size returns the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Waiting returns the number of callers blocked in [Pool.Acquire].
func (p *Pool) Waiting() int { return int(p.waiting.Load()) }

// Wait blocks until every slot is free or ctx is done. It is used to drain
// in-flight work during shutdown.
func (p *Pool) Wait(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return fmt.Errorf("workerpool %s: drain: %w", p.name, err)
	}
	p.sem.Release(p.size)
	return nil
}

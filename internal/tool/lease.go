package tool

import (
	"context"
	"sync"
)

// Lease is a worker slot lent to one call. The dispatcher holds the first
// reference; an adapter that returns before its work has stopped (an
// abandoned in-process handler) takes another with [Lease.Extend], so the
// slot is only released once nothing runs on it any more.
type Lease struct {
	mu      sync.Mutex
	refs    int
	release func()
}

// NewLease returns a lease holding one reference. release runs once, when
// the last reference is dropped.
func NewLease(release func()) *Lease {
	return &Lease{refs: 1, release: release}
}

// Extend adds a reference and returns the function dropping it. Calling the
// returned function more than once has no further effect. Extend on a nil
// lease returns a no-op.
func (l *Lease) Extend() func() {
	if l == nil {
		return func() {}
	}
	l.mu.Lock()
	l.refs++
	l.mu.Unlock()
	var once sync.Once
	return func() { once.Do(l.Done) }
}

// Done drops one reference.
func (l *Lease) Done() {
	l.mu.Lock()
	l.refs--
	last := l.refs == 0
	l.mu.Unlock()
	if last && l.release != nil {
		l.release()
	}
}

type leaseKey struct{}

// WithLease attaches l to ctx for the adapter to find.
func WithLease(ctx context.Context, l *Lease) context.Context {
	return context.WithValue(ctx, leaseKey{}, l)
}

// LeaseFrom returns the lease in ctx, or nil.
func LeaseFrom(ctx context.Context) *Lease {
	l, _ := ctx.Value(leaseKey{}).(*Lease)
	return l
}

// Package rendezvous pairs blocked tool calls with answers supplied by a human
// operator.
//
// A call opens a [Ticket] and waits on it. The [Broker] announces the ticket
// to every subscribed [Notifier] exactly once; operator surfaces (console,
// websocket bridge, HTTP endpoint) later call [Broker.Answer]. Each ticket
// accepts at most one answer and is removed as soon as its call returns,
// whether answered or expired, so a late answer can never reach a finished
// call.
package rendezvous

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTicketClosed is returned by [Broker.Answer] for tickets that were
	// already answered, expired, or never existed.
	ErrTicketClosed = errors.New("rendezvous: ticket is closed or unknown")

	// ErrExpired is returned by [Broker.Wait] when the wait ended without an
	// answer. It wraps the context error that caused the expiry.
	ErrExpired = errors.New("rendezvous: ticket expired")
)

// State is the lifecycle state of a ticket.
type State string

const (
	StatePending  State = "pending"
	StateAnswered State = "answered"
	StateExpired  State = "expired"
)

// TicketInfo is the public view of a ticket.
type TicketInfo struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool,omitempty"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
	State     State     `json:"state"`
}

// Event is delivered to notifiers. Kind is "opened" or "closed".
type Event struct {
	Kind   string     `json:"kind"`
	Ticket TicketInfo `json:"ticket"`
}

// Notifier is an operator-facing surface. Notify must not block for long;
// slow surfaces should queue internally.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Event)

// Notify calls f.
func (f NotifierFunc) Notify(e Event) { f(e) }

// Ticket is one outstanding request for human input.
type Ticket struct {
	info   TicketInfo
	answer chan string
}

// ID returns the ticket identifier.
func (t *Ticket) ID() string { return t.info.ID }

// Hooks observe ticket lifecycle for metrics.
type Hooks struct {
	Opened func()
	Closed func(outcome State)
}

// Broker tracks outstanding tickets. It is safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	tickets   map[string]*Ticket
	notifiers []Notifier
	hooks     Hooks
	now       func() time.Time
	newID     func() string
}

// Option configures a [Broker].
type Option func(*Broker)

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(b *Broker) { b.hooks = h }
}

// NewBroker returns an empty broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		tickets: make(map[string]*Ticket),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe adds a notifier. Tickets opened before the call are not replayed;
// surfaces that attach late use [Broker.Pending].
func (b *Broker) Subscribe(n Notifier) {
	b.mu.Lock()
	b.notifiers = append(b.notifiers, n)
	b.mu.Unlock()
}

// Open creates a pending ticket and announces it once to every notifier.
func (b *Broker) Open(toolName, prompt string) *Ticket {
	t := &Ticket{
		info: TicketInfo{
			ID:        b.newID(),
			Tool:      toolName,
			Prompt:    prompt,
			CreatedAt: b.now(),
			State:     StatePending,
		},
		answer: make(chan string, 1),
	}

	b.mu.Lock()
	b.tickets[t.info.ID] = t
	notifiers := slices.Clone(b.notifiers)
	b.mu.Unlock()

	if b.hooks.Opened != nil {
		b.hooks.Opened()
	}
	slog.Info("rendezvous: waiting for operator", "ticket", t.info.ID, "tool", toolName)
	ev := Event{Kind: "opened", Ticket: t.info}
	for _, n := range notifiers {
		n.Notify(ev)
	}
	return t
}

// Answer delivers answer to the pending ticket id. It returns
// [ErrTicketClosed] without side effects when the ticket is not pending.
func (b *Broker) Answer(id, answer string) error {
	b.mu.Lock()
	t, ok := b.tickets[id]
	if !ok || t.info.State != StatePending {
		b.mu.Unlock()
		slog.Debug("rendezvous: discarding answer for closed ticket", "ticket", id)
		return ErrTicketClosed
	}
	t.info.State = StateAnswered
	t.answer <- answer
	b.mu.Unlock()
	return nil
}

// Wait blocks until t is answered or ctx is done, then removes the ticket.
// On expiry the error wraps both [ErrExpired] and the context error.
func (b *Broker) Wait(ctx context.Context, t *Ticket) (string, error) {
	var (
		answer string
		err    error
	)
	select {
	case answer = <-t.answer:
	case <-ctx.Done():
		b.mu.Lock()
		if t.info.State == StateAnswered {
			// The answer won the race with the deadline; the channel holds it.
			answer = <-t.answer
		} else {
			t.info.State = StateExpired
			err = fmt.Errorf("%w: %w", ErrExpired, ctx.Err())
		}
		b.mu.Unlock()
	}
	b.close(t)
	return answer, err
}

// Ask opens a ticket and waits for its answer.
func (b *Broker) Ask(ctx context.Context, toolName, prompt string) (string, error) {
	return b.Wait(ctx, b.Open(toolName, prompt))
}

func (b *Broker) close(t *Ticket) {
	b.mu.Lock()
	delete(b.tickets, t.info.ID)
	info := t.info
	notifiers := slices.Clone(b.notifiers)
	b.mu.Unlock()

	if b.hooks.Closed != nil {
		b.hooks.Closed(info.State)
	}
	ev := Event{Kind: "closed", Ticket: info}
	for _, n := range notifiers {
		n.Notify(ev)
	}
}

// Pending lists pending tickets, oldest first.
func (b *Broker) Pending() []TicketInfo {
	b.mu.Lock()
	out := make([]TicketInfo, 0, len(b.tickets))
	for _, t := range b.tickets {
		if t.info.State == StatePending {
			out = append(out, t.info)
		}
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(a, b TicketInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/toolhub/internal/rendezvous"
)

// Console is a line-oriented operator surface, usually on the terminal that
// runs the hub.
//
// Input lines are answers. With exactly one pending ticket the whole line
// answers it; otherwise the line must start with a ticket id prefix:
//
//	3f2a9c answer text
//
// The line "list" prints the pending tickets.
type Console struct {
	broker *rendezvous.Broker
	in     io.Reader

	mu  sync.Mutex
	out io.Writer
}

var _ rendezvous.Notifier = (*Console)(nil)

// NewConsole returns a console bound to b and subscribes it.
func NewConsole(b *rendezvous.Broker, in io.Reader, out io.Writer) *Console {
	c := &Console{broker: b, in: in, out: out}
	b.Subscribe(c)
	return c
}

// Notify implements [rendezvous.Notifier].
func (c *Console) Notify(e rendezvous.Event) {
	switch e.Kind {
	case "opened":
		c.printf("\n[%s] %s asks: %s\n> ", short(e.Ticket.ID), e.Ticket.Tool, e.Ticket.Prompt)
	case "closed":
		if e.Ticket.State == rendezvous.StateExpired {
			c.printf("\n[%s] expired\n", short(e.Ticket.ID))
		}
	}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run reads input until ctx is done or the input ends.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			c.handle(strings.TrimSpace(line))
		}
	}
}

func (c *Console) handle(line string) {
	if line == "" {
		return
	}
	pending := c.broker.Pending()
	if line == "list" {
		if len(pending) == 0 {
			c.printf("no pending tickets\n")
		}
		for _, t := range pending {
			c.printf("[%s] %s: %s\n", short(t.ID), t.Tool, t.Prompt)
		}
		return
	}

	id, answer, err := resolve(pending, line)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	if err := c.broker.Answer(id, answer); err != nil {
		c.printf("[%s] %v\n", short(id), err)
		return
	}
	c.printf("[%s] answered\n", short(id))
}

// minPrefix keeps short words like "a" from being read as ticket ids.
const minPrefix = 4

// resolve picks the ticket a console line answers.
func resolve(pending []rendezvous.TicketInfo, line string) (id, answer string, err error) {
	if prefix, rest, ok := strings.Cut(line, " "); ok && len(prefix) >= minPrefix {
		var match []rendezvous.TicketInfo
		for _, t := range pending {
			if strings.HasPrefix(t.ID, prefix) {
				match = append(match, t)
			}
		}
		if len(match) == 1 {
			return match[0].ID, strings.TrimSpace(rest), nil
		}
	}
	switch len(pending) {
	case 0:
		return "", "", fmt.Errorf("no pending tickets")
	case 1:
		return pending[0].ID, line, nil
	}
	return "", "", fmt.Errorf("%d tickets pending; prefix the answer with a ticket id", len(pending))
}

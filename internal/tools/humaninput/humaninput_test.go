package humaninput

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

func TestAnswered(t *testing.T) {
	t.Parallel()
	b := rendezvous.NewBroker()
	b.Subscribe(rendezvous.NotifierFunc(func(e rendezvous.Event) {
		if e.Kind == "opened" {
			go func() { _ = b.Answer(e.Ticket.ID, "42") }()
		}
	}))

	res, err := New(b, time.Second).Run(context.Background(), types.Arguments{"prompt": types.String("answer?")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := res.Value.Field("user_response")
	if s, _ := got.Str(); s != "42" {
		t.Errorf("user_response = %v, want 42", got)
	}
}

func TestToolTimeoutThenLateAnswer(t *testing.T) {
	t.Parallel()
	b := rendezvous.NewBroker()
	opened := make(chan string, 1)
	b.Subscribe(rendezvous.NotifierFunc(func(e rendezvous.Event) {
		if e.Kind == "opened" {
			opened <- e.Ticket.ID
		}
	}))

	res, err := New(b, time.Minute).Run(context.Background(), types.Arguments{
		"prompt":          types.String("anyone?"),
		"timeout_seconds": types.Number(0.05),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Err != "timeout" {
		t.Fatalf("envelope = %+v, want tool error timeout", res)
	}

	id := <-opened
	if err := b.Answer(id, "too late"); !errors.Is(err, rendezvous.ErrTicketClosed) {
		t.Errorf("late Answer = %v, want ErrTicketClosed", err)
	}
	if n := len(b.Pending()); n != 0 {
		t.Errorf("%d tickets still pending", n)
	}
}

func TestHubDeadlineWins(t *testing.T) {
	t.Parallel()
	b := rendezvous.NewBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := New(b, time.Minute).Run(ctx, types.Arguments{"prompt": types.String("?")})
	if !errors.Is(err, tool.ErrTimeout) {
		t.Errorf("err = %v, want hub timeout", err)
	}
}

func TestDefaultTimeoutLeavesGrace(t *testing.T) {
	t.Parallel()
	if got := New(rendezvous.NewBroker(), time.Minute).DefaultTimeout(); got <= time.Minute {
		t.Errorf("DefaultTimeout = %v, want more than the answer wait", got)
	}
}

func TestTimeoutSecondsCappedAtConfiguredWait(t *testing.T) {
	t.Parallel()
	for _, secs := range []float64{3600, 1e300} {
		start := time.Now()
		res, err := New(rendezvous.NewBroker(), 50*time.Millisecond).Run(context.Background(), types.Arguments{
			"prompt":          types.String("?"),
			"timeout_seconds": types.Number(secs),
		})
		if err != nil {
			t.Fatalf("timeout_seconds=%g: Run: %v", secs, err)
		}
		if res.Err != "timeout" {
			t.Errorf("timeout_seconds=%g: envelope = %+v, want tool error timeout", secs, res)
		}
		if waited := time.Since(start); waited > 2*time.Second {
			t.Errorf("timeout_seconds=%g: waited %v, want the 50ms configured wait", secs, waited)
		}
	}
}

// Package humaninput implements the human_input tool: the call blocks until
// an operator answers the prompt through the rendezvous broker or the wait
// times out.
package humaninput

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "human_input"

// DefaultWait is how long a prompt stays open when the call does not say.
const DefaultWait = 5 * time.Minute

// hubGrace keeps the hub deadline slightly behind the tool's own wait so the
// tool reports its own timeout first.
const hubGrace = 5 * time.Second

// ErrTimeout is the tool-level error returned when nobody answered in time.
var ErrTimeout = errors.New("timeout")

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Asks a human operator a question and waits for the answer.",
	Parameters: types.Parameters{
		{Name: "prompt", Type: types.TypeString, Description: "The question shown to the operator.", Required: true},
		{Name: "timeout_seconds", Type: types.TypeNumber, Description: "How long to wait for an answer. Capped at the server's configured wait."},
	},
}

// New returns the tool bound to b. wait is the default answer timeout.
func New(b *rendezvous.Broker, wait time.Duration) *tool.Func {
	if wait <= 0 {
		wait = DefaultWait
	}
	return tool.MustFunc(descriptor, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		prompt, _ := args.Str("prompt")
		// Longer waits than the configured one would outlive the hub
		// deadline, so they are clipped.
		d := wait
		if secs, ok := args.Number("timeout_seconds"); ok && secs > 0 && secs < wait.Seconds() {
			d = time.Duration(secs * float64(time.Second))
		}

		waitCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		answer, err := b.Ask(waitCtx, Name, prompt)
		switch {
		case err == nil:
			return types.Object(map[string]types.Value{"user_response": types.String(answer)}), nil
		case ctx.Err() != nil:
			// The caller's deadline fired first; the adapter reports it as a
			// hub timeout.
			return types.Value{}, ctx.Err()
		default:
			return types.Value{}, ErrTimeout
		}
	}, tool.WithDefaultTimeout(wait+hubGrace))
}

// Package tool defines the adapter contract every tool implementation
// satisfies, the call error taxonomy, argument validation, and the two
// adapter kinds that need no extra transport: in-process functions and
// remote HTTP endpoints.
//
// Subprocess (gRPC) adapters live in package rpc and MCP adapters in package
// mcp; both implement [Adapter] and are registered with the hub the same way.
package tool

import (
	"context"

	"github.com/MrWong99/toolhub/pkg/types"
)

// AdapterKind names how a tool is reached.
type AdapterKind string

const (
	KindInProcess  AdapterKind = "in-process"
	KindSubprocess AdapterKind = "subprocess-rpc"
	KindRemoteHTTP AdapterKind = "remote-http"
	KindMCP        AdapterKind = "mcp"
)

// Adapter is the hub-side handle for one tool.
//
// Run returns the tool's result envelope. A tool-level failure (bad query,
// runtime fault in user code) is a [types.Result] with Err set and a nil
// error. The error return is reserved for failures outside the tool's own
// logic, reported as [*Error] of kind transport or timeout.
//
// Implementations must be safe for concurrent use.
type Adapter interface {
	Describe(ctx context.Context) (types.ToolDescriptor, error)
	Run(ctx context.Context, args types.Arguments) (types.Result, error)
	Kind() AdapterKind
	Close() error
}

// Liveness is the hub's view of a subprocess-backed tool.
type Liveness int32

const (
	LivenessStarting Liveness = iota
	LivenessServing
	LivenessUnreachable
)

// String returns the lower-case state name.
func (l Liveness) String() string {
	switch l {
	case LivenessStarting:
		return "starting"
	case LivenessServing:
		return "serving"
	case LivenessUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Prober is implemented by adapters that track the liveness of a separate
// process. The hub consults it before every call and the health monitor polls
// it periodically.
type Prober interface {
	// Liveness returns the last observed state without blocking.
	Liveness() Liveness

	// Probe checks the remote side now and returns the new state.
	Probe(ctx context.Context) Liveness
}

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/pkg/types"
)

// Dispatcher is the part of the hub the MCP server needs.
type Dispatcher interface {
	Tools() []types.ToolDescriptor
	Dispatch(ctx context.Context, name string, args types.Arguments, timeout time.Duration) (types.Result, error)
}

// NewServer returns an MCP server exposing every tool d lists. Calls go
// through d, so they get the same validation, timeouts and pool bound as
// any other front end.
//
// Hub errors (unknown tool, validation, transport, timeout) and tool-level
// failures are both reported as results with IsError set; the text carries
// the message.
func NewServer(d Dispatcher) *mcpsdk.Server {
	s := mcpsdk.NewServer(implementation, nil)
	for _, desc := range d.Tools() {
		s.AddTool(&mcpsdk.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: SchemaFromParams(desc.Parameters),
		}, handler(d, desc.Name))
	}
	return s
}

// Handler serves s over the streamable HTTP transport.
func Handler(s *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s }, nil)
}

func handler(d Dispatcher, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var raw map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &raw); err != nil {
				return errorResult("arguments must be a JSON object: " + err.Error()), nil
			}
		}
		args, err := types.ArgumentsFromAny(raw)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		res, err := d.Dispatch(ctx, name, args, 0)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if res.IsError() {
			return errorResult(res.Err), nil
		}
		return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text(*res.Value)}}}, nil
	}
}

// text renders strings verbatim and everything else as JSON.
func text(v types.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return v.String()
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
	}
}

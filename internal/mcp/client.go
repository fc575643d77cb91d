package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Transport selects how an external MCP server is reached.
type Transport string

const (
	// TransportStdio spawns the server and talks over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP talks to a running server over HTTP.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes an external MCP server.
type ServerConfig struct {
	// Name labels logs and errors.
	Name string

	Transport Transport

	// Command is split on spaces into executable and arguments (stdio).
	Command string

	// Env is added to the inherited environment (stdio).
	Env map[string]string

	// URL is the endpoint (streamable-http).
	URL string
}

// Conn is one client session shared by every tool imported from a server.
// The session closes when the last of its adapters is closed.
type Conn struct {
	name    string
	session *mcpsdk.ClientSession
	tools   []*mcpsdk.Tool

	refs  atomic.Int32
	state atomic.Int32
}

var implementation = &mcpsdk.Implementation{Name: "toolhub", Version: "1.0.0"}

// Connect opens a session to the server described by cfg and lists its
// tools.
func Connect(ctx context.Context, cfg ServerConfig) (*Conn, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp: server config must have a name")
	}
	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		fields := strings.Fields(cfg.Command)
		if len(fields) == 0 {
			return nil, fmt.Errorf("mcp: stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.Command(fields[0], fields[1:]...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp: streamable-http server %q requires a url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("mcp: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}
	return ConnectTransport(ctx, cfg.Name, transport)
}

// ConnectTransport is [Connect] over an already built transport.
func ConnectTransport(ctx context.Context, name string, transport mcpsdk.Transport) (*Conn, error) {
	client := mcpsdk.NewClient(implementation, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect to %q: %w", name, err)
	}
	var tools []*mcpsdk.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcp: list tools of %q: %w", name, err)
		}
		tools = append(tools, t)
	}
	c := &Conn{name: name, session: session, tools: tools}
	c.state.Store(int32(tool.LivenessServing))
	slog.Info("mcp: connected", "server", name, "tools", len(tools))
	return c, nil
}

// Adapters returns one adapter per tool the server offers. Each adapter
// holds a reference on the session.
func (c *Conn) Adapters() []*Adapter {
	out := make([]*Adapter, 0, len(c.tools))
	for _, t := range c.tools {
		c.refs.Add(1)
		out = append(out, &Adapter{
			conn: c,
			desc: types.ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ParamsFromSchema(t.InputSchema),
			},
		})
	}
	return out
}

// Close closes the session regardless of outstanding adapters.
func (c *Conn) Close() error { return c.session.Close() }

func (c *Conn) release() error {
	if c.refs.Add(-1) == 0 {
		return c.session.Close()
	}
	return nil
}

// Adapter is one imported MCP tool.
type Adapter struct {
	conn   *Conn
	desc   types.ToolDescriptor
	closed sync.Once
}

var (
	_ tool.Adapter = (*Adapter)(nil)
	_ tool.Prober  = (*Adapter)(nil)
)

// Describe returns the descriptor derived from the server's input schema.
func (a *Adapter) Describe(context.Context) (types.ToolDescriptor, error) { return a.desc, nil }

// Kind returns [tool.KindMCP].
func (a *Adapter) Kind() tool.AdapterKind { return tool.KindMCP }

// Liveness reports the shared session's last known state.
func (a *Adapter) Liveness() tool.Liveness { return tool.Liveness(a.conn.state.Load()) }

// Probe pings the server.
func (a *Adapter) Probe(ctx context.Context) tool.Liveness {
	state := tool.LivenessServing
	if err := a.conn.session.Ping(ctx, nil); err != nil {
		slog.Debug("mcp: ping failed", "server", a.conn.name, "err", err)
		state = tool.LivenessUnreachable
	}
	a.conn.state.Store(int32(state))
	return state
}

// Close releases this adapter's reference on the session. Repeated calls
// are no-ops.
func (a *Adapter) Close() error {
	var err error
	a.closed.Do(func() { err = a.conn.release() })
	return err
}

// Run calls the tool. A result flagged IsError becomes a tool-level failure
// carrying the text content. Otherwise structured content is preferred, then
// the text content decoded as JSON when it parses.
func (a *Adapter) Run(ctx context.Context, args types.Arguments) (types.Result, error) {
	res, err := a.conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      a.desc.Name,
		Arguments: args.Any(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.Result{}, tool.Timeout(a.desc.Name, ctx.Err())
		}
		a.conn.state.Store(int32(tool.LivenessUnreachable))
		return types.Result{}, tool.Transport(a.desc.Name, err)
	}

	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return types.Fail(text), nil
	}
	if res.StructuredContent != nil {
		if v, err := structured(res.StructuredContent); err == nil {
			return types.OK(v), nil
		}
	}
	return types.OK(tool.DecodeBody([]byte(text))), nil
}

func joinText(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func structured(x any) (types.Value, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return types.Value{}, err
	}
	var v types.Value
	err = json.Unmarshal(data, &v)
	return v, err
}

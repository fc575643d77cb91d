package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

const defaultProbeTimeout = 2 * time.Second

// Client is the hub-side adapter for one tool subprocess. It holds a single
// shared connection; concurrent calls are multiplexed over it.
type Client struct {
	cfg    ClientConfig
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	state  atomic.Int32

	mu        sync.Mutex
	desc      types.ToolDescriptor
	described bool

	// onClose runs after the connection is closed (the launcher stops the
	// child process here).
	onClose func() error
}

var (
	_ tool.Adapter = (*Client)(nil)
	_ tool.Prober  = (*Client)(nil)
)

// Dial creates a client for the subprocess at cfg.Address. The connection is
// established lazily; the client starts in the starting state.
func Dial(cfg ClientConfig, opts ...grpc.DialOption) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("rpc: client address is required")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", cfg.Address, err)
	}
	c := &Client{cfg: cfg, conn: conn, health: healthpb.NewHealthClient(conn)}
	c.state.Store(int32(tool.LivenessStarting))
	return c, nil
}

// Kind reports subprocess-rpc.
func (c *Client) Kind() tool.AdapterKind { return tool.KindSubprocess }

// DefaultTimeout reports the configured per-tool deadline.
func (c *Client) DefaultTimeout() time.Duration { return c.cfg.DefaultTimeout }

// Liveness returns the last observed state.
func (c *Client) Liveness() tool.Liveness { return tool.Liveness(c.state.Load()) }

// Probe runs one health check against the subprocess.
func (c *Client) Probe(ctx context.Context) tool.Liveness {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	next := tool.LivenessUnreachable
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	switch {
	case err != nil:
		slog.Debug("rpc: health check failed", "addr", c.cfg.Address, "err", err)
	case resp.GetStatus() == healthpb.HealthCheckResponse_SERVING:
		next = tool.LivenessServing
	}
	c.state.Store(int32(next))
	return next
}

// Describe fetches the descriptor on first success and caches it. Failures
// are not cached, so a subprocess that was still starting can be described
// later.
func (c *Client) Describe(ctx context.Context) (types.ToolDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.described {
		return c.desc, nil
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodGetDescription, &emptypb.Empty{}, out); err != nil {
		return types.ToolDescriptor{}, fmt.Errorf("rpc: describe %s: %w", c.cfg.Address, err)
	}
	desc, err := structToDescriptor(out)
	if err != nil {
		return types.ToolDescriptor{}, err
	}
	c.desc, c.described = desc, true
	return desc, nil
}

func (c *Client) name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.Name
}

// Run forwards one call to the subprocess.
func (c *Client) Run(ctx context.Context, args types.Arguments) (types.Result, error) {
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	name := c.name()
	req, err := requestToStruct(name, args)
	if err != nil {
		return types.Result{}, tool.Validation(name, err.Error())
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodRun, req, out); err != nil {
		return types.Result{}, c.classify(ctx, name, err)
	}
	res, err := structToResult(out)
	if err != nil {
		return types.Result{}, tool.Transport(name, err)
	}
	return res, nil
}

func (c *Client) classify(ctx context.Context, name string, err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.DeadlineExceeded, codes.Canceled:
		return tool.Timeout(name, err)
	case codes.InvalidArgument:
		return tool.Validation(name, st.Message())
	case codes.NotFound:
		return tool.UnknownTool(name)
	case codes.Unavailable:
		c.state.Store(int32(tool.LivenessUnreachable))
	}
	if ctx.Err() != nil {
		return tool.Timeout(name, err)
	}
	return tool.Transport(name, err)
}

// Close releases the connection and, for launched subprocesses, stops the
// child.
func (c *Client) Close() error {
	err := c.conn.Close()
	if c.onClose != nil {
		err = errors.Join(err, c.onClose())
	}
	return err
}

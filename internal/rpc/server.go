package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/workerpool"
)

// ServerState is the process-wide state of a tool subprocess: the hosted
// tool, the worker pool that bounds concurrent calls, and the listening gRPC
// server with its health service.
//
// Create one per process with [NewServerState], call [ServerState.Serve]
// once, and [ServerState.Shutdown] to stop accepting calls and drain the pool.
type ServerState struct {
	cfg    ServerConfig
	tool   tool.Adapter
	pool   *workerpool.Pool
	health *health.Server
	grpc   *grpc.Server

	mu  sync.Mutex
	lis net.Listener
}

var _ toolServer = (*ServerState)(nil)

// NewServerState prepares a server for t. Nothing listens until Serve.
func NewServerState(cfg ServerConfig, t tool.Adapter, opts ...grpc.ServerOption) *ServerState {
	cfg.applyDefaults()
	s := &ServerState{
		cfg:    cfg,
		tool:   t,
		pool:   workerpool.New("toolserver", cfg.MaxWorkers),
		health: health.NewServer(),
		grpc:   grpc.NewServer(opts...),
	}
	s.grpc.RegisterService(&toolServiceDesc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Pool returns the worker pool.
func (s *ServerState) Pool() *workerpool.Pool { return s.pool }

// Listen binds the configured address. Serve calls it when needed; calling it
// first lets callers learn the bound address (useful with port 0 in tests).
func (s *ServerState) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return s.lis.Addr(), nil
	}
	lis, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("rpc: listen on %s: %w", s.cfg.Address(), err)
	}
	s.lis = lis
	return lis.Addr(), nil
}

// Serve accepts calls until Shutdown. It marks the service serving once the
// listener is bound.
func (s *ServerState) Serve() error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	slog.Info("toolserver: serving", "addr", addr.String(), "workers", s.pool.Size())

	s.mu.Lock()
	lis := s.lis
	s.mu.Unlock()
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("rpc: serve: %w", err)
	}
	return nil
}

// Shutdown flips health to NOT_SERVING, stops accepting new calls and waits
// for in-flight ones. When ctx expires first, remaining calls are cut off.
func (s *ServerState) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}

	var errs []error
	if err := s.pool.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain workers: %w", err))
	}
	if err := s.tool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close tool: %w", err))
	}
	return errors.Join(errs...)
}

// GetDescription implements the Tool service.
func (s *ServerState) GetDescription(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	desc, err := s.tool.Describe(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "describe: %v", err)
	}
	out, err := descriptorToStruct(desc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode descriptor: %v", err)
	}
	return out, nil
}

// Run implements the Tool service. Tool failures travel in the envelope; the
// status code is reserved for protocol, validation and deadline problems.
func (s *ServerState) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := structToRequest(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	desc, err := s.tool.Describe(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "describe: %v", err)
	}
	if req.Name != "" && req.Name != desc.Name {
		return nil, status.Errorf(codes.NotFound, "this server hosts %q, not %q", desc.Name, req.Name)
	}
	if err := tool.ValidateArgs(desc, req.Arguments); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	lease := tool.NewLease(release)
	defer lease.Done()
	ctx = tool.WithLease(ctx, lease)

	res, err := s.tool.Run(ctx, req.Arguments)
	if err != nil {
		if errors.Is(err, tool.ErrTimeout) {
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	out, err := resultToStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Package rpc carries the tool contract across a process boundary.
//
// A subprocess hosts one tool behind the gRPC service "toolhub.Tool" with two
// unary methods, GetDescription and Run, plus the standard grpc.health.v1
// service. Messages are protobuf well-known types (Struct and Empty), so no
// generated code is needed: the service descriptor below is written by hand
// and the client calls methods through [grpc.ClientConn.Invoke].
//
// The subprocess side is [ServerState]; the hub side is [Client], which
// implements tool.Adapter and tool.Prober.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/MrWong99/toolhub/pkg/types"
)

// ServiceName is the gRPC service name and the health-check service key.
const ServiceName = "toolhub.Tool"

const (
	methodGetDescription = "/" + ServiceName + "/GetDescription"
	methodRun            = "/" + ServiceName + "/Run"
)

// toolServer is the server-side contract of the Tool service.
type toolServer interface {
	GetDescription(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var toolServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*toolServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDescription", Handler: getDescriptionHandler},
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolhub/tool.proto",
}

func getDescriptionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(toolServer).GetDescription(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetDescription}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(toolServer).GetDescription(ctx, req.(*emptypb.Empty))
	})
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(toolServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRun}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(toolServer).Run(ctx, req.(*structpb.Struct))
	})
}

// ─── Wire conversions ────────────────────────────────────────────────────────

func descriptorToStruct(d types.ToolDescriptor) (*structpb.Struct, error) {
	params := make([]any, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		params = append(params, map[string]any{
			"name":        p.Name,
			"type":        string(p.Type),
			"description": p.Description,
			"required":    p.Required,
		})
	}
	return structpb.NewStruct(map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"parameters":  params,
	})
}

func structToDescriptor(s *structpb.Struct) (types.ToolDescriptor, error) {
	f := s.GetFields()
	d := types.ToolDescriptor{
		Name:        f["name"].GetStringValue(),
		Description: f["description"].GetStringValue(),
	}
	for i, pv := range f["parameters"].GetListValue().GetValues() {
		pf := pv.GetStructValue().GetFields()
		if pf == nil {
			return types.ToolDescriptor{}, fmt.Errorf("rpc: parameter #%d is not an object", i)
		}
		d.Parameters = append(d.Parameters, types.Parameter{
			Name:        pf["name"].GetStringValue(),
			Type:        types.ParamType(pf["type"].GetStringValue()),
			Description: pf["description"].GetStringValue(),
			Required:    pf["required"].GetBoolValue(),
		})
	}
	if err := d.Validate(); err != nil {
		return types.ToolDescriptor{}, fmt.Errorf("rpc: %w", err)
	}
	return d, nil
}

func requestToStruct(name string, args types.Arguments) (*structpb.Struct, error) {
	if args == nil {
		args = types.Arguments{}
	}
	return structpb.NewStruct(map[string]any{
		"name":      name,
		"arguments": args.Any(),
	})
}

func structToRequest(s *structpb.Struct) (types.Request, error) {
	f := s.GetFields()
	req := types.Request{Name: f["name"].GetStringValue()}
	args, err := types.ArgumentsFromAny(f["arguments"].GetStructValue().AsMap())
	if err != nil {
		return types.Request{}, err
	}
	req.Arguments = args
	return req, nil
}

func resultToStruct(r types.Result) (*structpb.Struct, error) {
	if !r.Valid() {
		return nil, errors.New("rpc: invalid result envelope")
	}
	if r.IsError() {
		return structpb.NewStruct(map[string]any{"error": r.Err})
	}
	return structpb.NewStruct(map[string]any{"result": r.Value.Any()})
}

func structToResult(s *structpb.Struct) (types.Result, error) {
	f := s.GetFields()
	if ev, ok := f["error"]; ok {
		if _, has := f["result"]; has {
			return types.Result{}, errors.New("rpc: response carries both result and error")
		}
		return types.Fail(ev.GetStringValue()), nil
	}
	rv, ok := f["result"]
	if !ok {
		return types.Result{}, errors.New("rpc: response carries neither result nor error")
	}
	v, err := types.FromAny(rv.AsInterface())
	if err != nil {
		return types.Result{}, fmt.Errorf("rpc: decode result: %w", err)
	}
	return types.OK(v), nil
}

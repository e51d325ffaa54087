package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/logger"
)

const controlServiceName = "tuner.v1.ControlService"

// ControlServer is the server API of tuner.v1.ControlService.
// Responses are google.protobuf.Struct documents with the same shape as the
// HTTP endpoints.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetBest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stop(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ControlServiceDesc describes tuner.v1.ControlService for grpc.Server.RegisterService
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", ControlServer.GetStatus)},
		{MethodName: "GetBest", Handler: unaryHandler("GetBest", ControlServer.GetBest)},
		{MethodName: "Stop", Handler: unaryHandler("Stop", ControlServer.Stop)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tuner/v1/control.proto",
}

type controlMethod func(ControlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unaryHandler(name string, call controlMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + controlServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterControlServer registers srv on s
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// ControlClient calls tuner.v1.ControlService
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient creates a client over cc
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) invoke(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+controlServiceName+"/"+method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", opts...)
}

func (c *ControlClient) GetBest(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetBest", opts...)
}

func (c *ControlClient) Stop(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Stop", opts...)
}

// ControlGRPCServer implements ControlServer on top of a Runner.
type ControlGRPCServer struct {
	runner *runner.Runner
}

// NewControlGRPCServer creates a ControlGRPCServer for r
func NewControlGRPCServer(r *runner.Runner) *ControlGRPCServer {
	return &ControlGRPCServer{runner: r}
}

func (s *ControlGRPCServer) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]any{"search": s.runner.Status()})
}

func (s *ControlGRPCServer) GetBest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(bestView(s.runner))
}

func (s *ControlGRPCServer) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.runner.Stop(); err != nil {
		if errors.Is(err, runner.ErrNotRunning) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	logger.Info("search stop requested (gRPC)", "run_id", s.runner.ID())
	return toStruct(map[string]any{"search": s.runner.Status()})
}

// toStruct converts a JSON-encodable value into a protobuf Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	return out, nil
}

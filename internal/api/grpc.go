package api

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"xmasladder/internal/domain"
)

// Service and method names of the backtest RPC. Messages are
// google.protobuf.Struct values, so no generated code is needed.
const (
	ServiceName   = "xmasladder.v1.Backtester"
	RunMethodName = "/" + ServiceName + "/Run"
)

// BacktesterServer is the server API for the Backtester service.
type BacktesterServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// BacktesterServiceDesc describes the Backtester service for grpc.Server.RegisterService.
var BacktesterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktesterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler:    runHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "xmasladder/v1/backtester.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktesterServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RunMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktesterServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterBacktesterServer registers srv on gs.
func RegisterBacktesterServer(gs grpc.ServiceRegistrar, srv BacktesterServer) {
	gs.RegisterService(&BacktesterServiceDesc, srv)
}

// statusError maps domain errors onto gRPC status codes.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNoData):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

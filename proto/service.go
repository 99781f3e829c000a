package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pairs-backtest/services/engine"
)

const ServiceName = "pairs.v1.BacktestService"

type BacktestServiceServer interface {
	Run(context.Context, *BacktestRequest) (*BacktestResponse, error)
	Summary(context.Context, *SummaryRequest) (*SummaryResponse, error)
}

// RequestSeeder is implemented by servers that prefill incoming Run requests, so fields
// the caller leaves out keep the server's defaults.
type RequestSeeder interface {
	NewRequest() BacktestRequest
}

func seedRequest(srv any) *BacktestRequest {
	var req BacktestRequest
	if s, ok := srv.(RequestSeeder); ok {
		req = s.NewRequest()
	} else {
		req = NewBacktestRequest(engine.DefaultRunConfig())
	}
	return &req
}

type UnimplementedBacktestServiceServer struct{}

func (UnimplementedBacktestServiceServer) Run(context.Context, *BacktestRequest) (*BacktestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Run not implemented")
}

func (UnimplementedBacktestServiceServer) Summary(context.Context, *SummaryRequest) (*SummaryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Summary not implemented")
}

func RegisterBacktestServiceServer(s grpc.ServiceRegistrar, srv BacktestServiceServer) {
	s.RegisterService(&BacktestServiceDesc, srv)
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := seedRequest(srv)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Run"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).Run(ctx, req.(*BacktestRequest))
	})
}

func summaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SummaryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Summary"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).Summary(ctx, req.(*SummaryRequest))
	})
}

var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
		{MethodName: "Summary", Handler: summaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pairs/v1/backtest.proto",
}

type BacktestServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBacktestServiceClient(cc grpc.ClientConnInterface) *BacktestServiceClient {
	return &BacktestServiceClient{cc: cc}
}

func (c *BacktestServiceClient) Run(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error) {
	out := new(BacktestResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec())}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Run", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BacktestServiceClient) Summary(ctx context.Context, in *SummaryRequest, opts ...grpc.CallOption) (*SummaryResponse, error) {
	out := new(SummaryResponse)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec())}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Summary", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

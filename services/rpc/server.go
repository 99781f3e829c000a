// Package rpc serves backtests over gRPC with the JSON codec from package proto.
package rpc

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pairs-backtest/proto"
	"pairs-backtest/services/engine"
	"pairs-backtest/services/runner"
)

type BacktestService struct {
	proto.UnimplementedBacktestServiceServer
	runner *runner.Runner
	logger *zap.Logger
}

func NewBacktestService(r *runner.Runner, logger *zap.Logger) *BacktestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestService{runner: r, logger: logger}
}

// NewServer returns a grpc server that speaks JSON and has the service registered.
func NewServer(svc *BacktestService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ForceServerCodec(proto.Codec()),
		grpc.ChainUnaryInterceptor(svc.logCalls),
	}, opts...)
	s := grpc.NewServer(opts...)
	proto.RegisterBacktestServiceServer(s, svc)
	return s
}

// NewRequest seeds decoding of Run calls with the runner's configured defaults.
func (s *BacktestService) NewRequest() proto.BacktestRequest { return s.runner.NewRequest() }

func (s *BacktestService) Run(ctx context.Context, req *proto.BacktestRequest) (*proto.BacktestResponse, error) {
	rec, err := s.runner.Run(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return runner.Response(rec), nil
}

func (s *BacktestService) Summary(ctx context.Context, req *proto.SummaryRequest) (*proto.SummaryResponse, error) {
	resp, err := s.runner.Summary(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *BacktestService) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug("grpc call",
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	return resp, err
}

func toStatus(err error) error {
	var ee *engine.Error
	switch {
	case errors.As(err, &ee) && ee.Kind == engine.KindConfiguration:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &ee):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, runner.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, runner.ErrUnknownRun):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// loggingInterceptor logs every unary call and turns handler panics into
// codes.Internal.
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "panic recovered", "method", info.FullMethod, "panic", fmt.Sprintf("%v", r))
			resp, err = nil, status.Error(codes.Internal, "internal error")
		}

		code := status.Code(err)
		args := []any{"method", info.FullMethod, "code", code.String(), "latency", time.Since(start)}
		if err != nil && code != codes.NotFound {
			s.logger.Warn(ctx, "grpc call", append(args, "error", err)...)
			return
		}
		s.logger.Debug(ctx, "grpc call", args...)
	}()

	return handler(ctx, req)
}

package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/autopeer-io/amrfleet/pkg/log"
)

// UnaryServerLogging attaches a method-scoped logger to the context and logs
// the outcome of each call.
func UnaryServerLogging(logger log.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		l := logger.WithValues("method", info.FullMethod)
		start := time.Now()

		resp, err := handler(log.NewContext(ctx, l), req)
		if err != nil {
			l.Warn("gRPC call failed", "code", status.Code(err).String(), "error", err.Error(), "elapsed", time.Since(start))
			return resp, err
		}
		l.Debug("gRPC call served", "elapsed", time.Since(start))
		return resp, nil
	}
}

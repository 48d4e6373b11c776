package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const DefaultRPCTimeout = 10 * time.Second

// UnaryTimeoutInterceptor bounds client calls that carry no deadline.
func UnaryTimeoutInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	ctx, cancel := withDefaultTimeout(ctx, DefaultRPCTimeout)
	defer cancel()
	return invoker(ctx, method, req, reply, cc, opts...)
}

// UnaryServerTimeout applies d to incoming calls that carry no deadline.
func UnaryServerTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, cancel := withDefaultTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	grpcmw "github.com/autopeer-io/amrfleet/internal/pkg/middleware/grpc"
	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

// Server exposes the command gateway over gRPC.
type Server struct {
	server  *grpc.Server
	health  *health.Server
	options *options.GrpcOptions
}

func NewServer(opts *options.GrpcOptions, svc *service.Service) *Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcmw.UnaryServerLogging(log.WithName("grpc")),
		grpcmw.UnaryServerTimeout(opts.Timeout),
	))

	RegisterCommandGatewayServer(srv, &gatewayServer{svc: svc})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{server: srv, health: hs, options: opts}
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc addr %s: %w", s.options.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	log.Info("Starting gRPC server", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.server.GracefulStop()
	}()

	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc server stopped: %w", err)
	}
	return nil
}

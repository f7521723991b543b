package grpcx

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server that always carries the standard health service.
type Server struct {
	*grpc.Server
	Health *health.Server
}

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	s := &Server{Server: grpc.NewServer(opts...), Health: health.NewServer()}
	healthpb.RegisterHealthServer(s.Server, s.Health)
	return s
}

// SetServing flips the status for the whole server and each named service.
func (s *Server) SetServing(serving bool, services ...string) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus("", st)
	for _, name := range services {
		s.Health.SetServingStatus(name, st)
	}
}

// Serve blocks until ctx is done, then drains in-flight calls.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Server.Serve(lis) }()
	select {
	case <-ctx.Done():
		s.Health.Shutdown()
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

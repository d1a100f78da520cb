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

// Server is a gRPC server exposing the standard health service for one named service.
type Server struct {
	srv     *grpc.Server
	health  *health.Server
	service string
	logger  *slog.Logger
}

func NewServer(service string, logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLogInterceptor(logger),
		),
	}
	opts = append(opts, extra...)

	s := &Server{
		srv:     grpc.NewServer(opts...),
		health:  health.NewServer(),
		service: service,
		logger:  logger,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing flips both the named service and the overall ("") status.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, st)
	s.health.SetServingStatus("", st)
}

// Serve listens on addr until ctx is cancelled, then drains in-flight calls.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.SetServing(false)
		s.srv.GracefulStop()
	}()

	s.SetServing(true)
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

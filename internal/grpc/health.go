package grpc

import (
	"context"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"hire-realtime/internal/observability"
)

// HealthServer exposes grpc.health.v1 for orchestrator probes.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewHealthServer(logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer(grpc.UnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs, logger: logger}
}

// SetServing flips the overall serving status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.server.GracefulStop()
	}()
	s.logger.Info("grpc health server listening", zap.String("addr", addr))
	return s.server.Serve(lis)
}

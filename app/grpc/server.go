package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the health service alongside the
// overall ("") status.
const ServiceName = "solanapay.PaymentsService"

const defaultCheckInterval = 15 * time.Second

type nodeChecker interface {
	Health(ctx context.Context) error
}

// Server is the gRPC face of the service: the standard health service whose
// status follows the default RPC node.
type Server struct {
	*health.Server
	node nodeChecker
}

func NewServer(node nodeChecker) *Server {
	return &Server{Server: health.NewServer(), node: node}
}

func (s *Server) Register(grpcSrv *grpc.Server) {
	healthpb.RegisterHealthServer(grpcSrv, s)
}

// Refresh checks the RPC node once and publishes the result.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := s.node.Health(ctx); err != nil {
		logger.WithError(err).Warn("rpc node health check failed")
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}

	s.SetServingStatus("", servingStatus)
	s.SetServingStatus(ServiceName, servingStatus)
	return servingStatus
}

// Run refreshes the health status every interval until ctx is done, then marks
// every service as not serving.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown()
			logger.WithFields(logrus.Fields{"service": ServiceName}).Info("health service stopped")
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

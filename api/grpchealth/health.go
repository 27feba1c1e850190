// Package grpchealth serves the standard gRPC health protocol from the
// pipeline's provider health report.
package grpchealth

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/aydarnuman/tender-analyzer/internal/pipeline"
	"github.com/aydarnuman/tender-analyzer/pkg/logger"
)

// Service names reported next to the overall ("") status.
const (
	ServiceLayout       = "tender.layout"
	ServiceTrainedModel = "tender.trained_model"
	ServiceGenerative   = "tender.generative"
)

type reportSource interface {
	Health() pipeline.HealthReport
}

type Server struct {
	health *health.Server
	source reportSource
	logger logger.Logger
}

func New(source reportSource, log logger.Logger) *Server {
	s := &Server{health: health.NewServer(), source: source, logger: log.Named("grpc-health")}
	s.Update()
	return s
}

// Register adds the health service to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.health)
}

// Update publishes the current report.
func (s *Server) Update() {
	rep := s.source.Health()
	set := func(service string, ok bool) {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(service, st)
	}
	if !rep.Healthy() {
		s.logger.Warn("No extraction layer available")
	}
	set("", rep.Healthy())
	set(ServiceLayout, rep.LayoutProvider.Configured && rep.LayoutProvider.Healthy)
	set(ServiceTrainedModel, rep.TrainedModelProvider.Enabled)
	set(ServiceGenerative, rep.GenerativeProvider.Configured)
}

// Run refreshes on every tick until ctx is done, then marks everything
// NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		s.health.Shutdown()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Update()
		}
	}
}

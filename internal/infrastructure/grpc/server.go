// Package grpc serves the standard gRPC health protocol for the service and each registered
// component, behind the API-key interceptors
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"basket_swap/internal/auth"
	"basket_swap/internal/core"
	"basket_swap/internal/infrastructure/health"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix namespaces per-component health service names
const ServicePrefix = "basket_swap."

// HealthServer publishes HealthManager verdicts over grpc.health.v1
type HealthServer struct {
	hm       *health.HealthManager
	logger   core.ILogger
	interval time.Duration

	grpcServer *grpc.Server
	health     *grpchealth.Server

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewHealthServer builds the gRPC server. validator may be nil or disabled, in which case no
// authentication is applied.
func NewHealthServer(hm *health.HealthManager, validator *auth.APIKeyValidator, interval time.Duration, logger core.ILogger) *HealthServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	var opts []grpc.ServerOption
	if validator != nil && validator.Enabled() {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(validator.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(validator.StreamServerInterceptor()),
		)
	}

	s := &HealthServer{
		hm:         hm,
		logger:     logger.WithField("component", "grpc_health"),
		interval:   interval,
		grpcServer: grpc.NewServer(opts...),
		health:     grpchealth.NewServer(),
		stopChan:   make(chan struct{}),
	}
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// Sync copies the current verdicts into the health service
func (s *HealthServer) Sync() {
	overall := grpc_health_v1.HealthCheckResponse_SERVING
	if !s.hm.IsHealthy() {
		overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)

	for name, st := range s.hm.GetStatus() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if st != "Healthy" {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(ServicePrefix+name, status)
	}
}

// Serve blocks serving on lis until Stop
func (s *HealthServer) Serve(lis net.Listener) error {
	s.Sync()
	go s.syncLoop()
	s.logger.Info("gRPC health server serving", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// ListenAndServe listens on port and serves
func (s *HealthServer) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return s.Serve(lis)
}

func (s *HealthServer) syncLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sync()
		}
	}
}

// Stop marks everything NOT_SERVING and drains connections until ctx is done
func (s *HealthServer) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.health.Shutdown()

		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpcServer.Stop()
		}
	})
}

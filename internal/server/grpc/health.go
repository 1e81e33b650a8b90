package grpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db"
	"github.com/pandeptwidyaop/hookrelay/internal/server/grpc/interceptors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// ServiceName is the health service name orchestrators probe for the relay.
const ServiceName = "hookrelay.Relay"

// DefaultProbeInterval is how often the database is pinged.
const DefaultProbeInterval = 10 * time.Second

// HealthChecker keeps the gRPC health status in line with database reachability.
type HealthChecker struct {
	db       *gorm.DB
	server   *health.Server
	interval time.Duration
	log      zerolog.Logger
}

// NewHealthChecker creates a health checker. Status starts as NOT_SERVING
// until the first probe succeeds.
func NewHealthChecker(database *gorm.DB, interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthChecker{
		db:       database,
		server:   hs,
		interval: interval,
		log:      logger.Component("health"),
	}
}

// Probe pings the database once and publishes the result.
func (c *HealthChecker) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := db.Ping(ctx, c.db); err != nil {
		c.log.Warn().Err(err).Msg("Database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return status
}

// Run probes on every interval until ctx is cancelled, then marks the
// service as shutting down.
func (c *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}

// NewServer builds a gRPC server exposing the standard health service.
func NewServer(checker *HealthChecker, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryInterceptor(),
			interceptors.LoggingInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			interceptors.StreamLoggingInterceptor(),
		),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}, opts...)

	server := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(server, checker.server)
	return server
}

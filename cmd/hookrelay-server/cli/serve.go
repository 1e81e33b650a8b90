package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/server/config"
	"github.com/pandeptwidyaop/hookrelay/internal/server/credential"
	"github.com/pandeptwidyaop/hookrelay/internal/server/delivery"
	"github.com/pandeptwidyaop/hookrelay/internal/server/events"
	grpcserver "github.com/pandeptwidyaop/hookrelay/internal/server/grpc"
	"github.com/pandeptwidyaop/hookrelay/internal/server/hooks"
	"github.com/pandeptwidyaop/hookrelay/internal/server/ingest"
	"github.com/pandeptwidyaop/hookrelay/internal/server/reaper"
	"github.com/pandeptwidyaop/hookrelay/internal/server/web/api"
	"github.com/pandeptwidyaop/hookrelay/internal/server/web/middleware"
	versionpkg "github.com/pandeptwidyaop/hookrelay/internal/version"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
	"github.com/pandeptwidyaop/hookrelay/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Hookrelay server",
	Long:  `Start the HTTP API, the public ingestion endpoint, the retention reaper and the optional gRPC health endpoint.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServer()
	},
}

// services groups the long-lived components built from config.
type services struct {
	handler *api.Handler
	limiter *middleware.RateLimiter
	reaper  *reaper.Reaper
	health  *grpcserver.HealthChecker
}

func buildServices(cfg *config.Config, database *gorm.DB) (*services, error) {
	authority := credential.NewHTTPAuthority(
		cfg.Authority.URL,
		cfg.Authority.ServiceSecret,
		cfg.Authority.ServiceName,
		cfg.Authority.Timeout,
	)
	cache := credential.NewCache(authority, cfg.Cache.TTL, cfg.Cache.Size)

	registry := hooks.NewRegistry(database)
	store := events.NewStore(database)

	dispatcher := delivery.NewDispatcher(store,
		delivery.NewMessageChannel(cfg.Delivery.SigningKey, cfg.Delivery.Issuer),
		delivery.NewEmailChannel(cfg.Delivery.MailFrom),
	)

	pipeline := ingest.NewPipeline(registry, store, dispatcher, ingest.Options{
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		PreviewBytes: cfg.Ingest.PreviewBytes,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		proxies, err := utils.ParseCIDRs(cfg.Server.TrustedProxies)
		if err != nil {
			return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
		}
		limiter = middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst).
			TrustProxies(proxies)
	}

	svc := &services{
		handler: api.NewHandler(database, registry, store, pipeline, cache, limiter, cfg),
		limiter: limiter,
		reaper:  reaper.New(store, cfg.Retention.Window, cfg.Retention.Interval),
	}
	if cfg.Server.GRPCPort > 0 {
		svc.health = grpcserver.NewHealthChecker(database, grpcserver.DefaultProbeInterval)
	}
	return svc, nil
}

func runServer() error {
	cfg, database, err := bootstrap()
	if err != nil {
		return err
	}

	info := versionpkg.GetVersion()
	logger.InfoEvent().
		Str("version", info.Version).
		Str("build_time", info.BuildDate).
		Str("git_commit", info.GitCommit).
		Msg("Starting Hookrelay server")

	svc, err := buildServices(cfg, database)
	if err != nil {
		return err
	}
	if svc.limiter != nil {
		defer svc.limiter.Close()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           svc.handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if svc.health != nil {
		grpcAddr := fmt.Sprintf(":%d", cfg.Server.GRPCPort)
		grpcListener, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		grpcServer = grpcserver.NewServer(svc.health)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// HTTP API and ingestion
	g.Go(func() error {
		logger.InfoEvent().
			Str("addr", httpServer.Addr).
			Str("public_url", cfg.Server.PublicURL).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Retention
	g.Go(func() error {
		svc.reaper.Run(gctx)
		return nil
	})

	// Optional gRPC health endpoint
	if grpcServer != nil {
		g.Go(func() error {
			svc.health.Run(gctx)
			return nil
		})
		g.Go(func() error {
			logger.InfoEvent().
				Str("addr", grpcListener.Addr().String()).
				Msg("gRPC health server listening")

			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("failed to serve gRPC: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()

		logger.InfoEvent().Msg("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorEvent().Err(err).Msg("HTTP server shutdown error")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.InfoEvent().Msg("Server stopped")
	return nil
}

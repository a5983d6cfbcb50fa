package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/expo-updates-server/internal/api/grpc/health"
	api "github.com/oshokin/expo-updates-server/internal/api/http/updates"
	"github.com/oshokin/expo-updates-server/internal/cache"
	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/metrics"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
	"github.com/oshokin/expo-updates-server/internal/service/common"
	"github.com/oshokin/expo-updates-server/internal/service/manifest"
	"github.com/oshokin/expo-updates-server/internal/signing"
)

const (
	// metricsNamespace prefixes every exported metric.
	metricsNamespace = "updates"
	// metricsPath serves the Prometheus exposition.
	metricsPath = "/metrics"
	// shutdownTimeout bounds how long in-flight requests may take after cancellation.
	shutdownTimeout = 10 * time.Second
	// readHeaderTimeout protects against slow clients holding connections open.
	readHeaderTimeout = 10 * time.Second
)

// application holds the wired server components.
type application struct {
	// settings is the validated configuration.
	settings *config.Config
	// repo is the content store.
	repo blob.Repository
	// digestCache is nil unless Redis is configured.
	digestCache *cache.Redis
	// registry collects the process metrics.
	registry *prometheus.Registry
	// handler serves the HTTP API and metrics.
	handler http.Handler
	// prober reports store health over gRPC.
	prober *health.Prober
}

// newApplication wires every component described by settings.
func newApplication(ctx context.Context, settings *config.Config) (*application, error) {
	repo, err := common.OpenRepository(ctx, settings.Storage)
	if err != nil {
		return nil, err
	}

	return newApplicationWithRepository(ctx, settings, repo)
}

// newApplicationWithRepository wires the server around an existing content store.
func newApplicationWithRepository(
	ctx context.Context,
	settings *config.Config,
	repo blob.Repository,
) (*application, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	promMetrics := metrics.NewProm(metricsNamespace, registry)

	app := &application{
		settings: settings,
		repo:     repo,
		registry: registry,
		prober:   health.NewProber(repo, health.WithTimeout(settings.Timeout)),
	}

	engineOptions := []manifest.Option{manifest.WithMetrics(promMetrics)}

	if settings.Cache.RedisAddress != "" {
		digestCache, err := cache.Dial(ctx, settings.Cache.RedisAddress, settings.Cache.TTL)
		if err != nil {
			return nil, err
		}

		app.digestCache = digestCache
		engineOptions = append(engineOptions, manifest.WithDigestCache(digestCache))
	}

	packagerOptions := []api.PackagerOption{api.WithAssetRequestHeaders(settings.AssetRequestHeaders)}

	if settings.Signing.PrivateKeyPath != "" {
		signer, err := signing.LoadSigner(settings.Signing.PrivateKeyPath, settings.Signing.KeyID)
		if err != nil {
			app.close(ctx)

			return nil, fmt.Errorf("load signing key: %w", err)
		}

		packagerOptions = append(packagerOptions, api.WithSigner(signer))
	}

	engine := manifest.NewEngine(repo, settings.PublicURL, engineOptions...)
	handler := api.NewHandler(engine, api.NewPackager(packagerOptions...),
		api.WithMetrics(promMetrics),
		api.WithRateLimit(settings.RateLimit.RPS, settings.RateLimit.Burst),
	)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET "+metricsPath, metrics.Handler(registry))

	app.handler = mux

	logger.InfoKV(ctx, "Server components ready",
		"storage", settings.Storage.Type,
		"public_url", settings.PublicURL,
		"signing", settings.Signing.PrivateKeyPath != "",
		"digest_cache", app.digestCache != nil,
		"rate_limit_rps", settings.RateLimit.RPS,
	)

	return app, nil
}

// serve runs the HTTP server, and the health server when healthListener is set,
// until ctx is cancelled. Both servers drain gracefully before serve returns.
func (a *application) serve(ctx context.Context, httpListener, healthListener net.Listener) error {
	httpServer := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// Requests keep the scoped logger but outlive cancellation while draining.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	group, groupCtx := errgroup.WithContext(ctx)

	logger.InfoKV(ctx, "Updates server listening", "listen_address", httpListener.Addr().String())

	group.Go(func() error {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	var grpcServer *grpc.Server

	if healthListener != nil {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, a.prober.Server())

		logger.InfoKV(ctx, "Health server listening", "health_address", healthListener.Addr().String())

		group.Go(func() error {
			a.prober.Run(groupCtx)

			return nil
		})

		group.Go(func() error {
			if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC: %w", err)
			}

			return nil
		})
	}

	// Stop both servers once the context ends or either server fails.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down servers")

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP: %w", err)
		}

		return nil
	})

	err := group.Wait()

	logger.Info(ctx, "Servers stopped")

	return err
}

// close releases external connections.
func (a *application) close(ctx context.Context) {
	if a.digestCache == nil {
		return
	}

	if err := a.digestCache.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close digest cache", "error", err)
	}
}

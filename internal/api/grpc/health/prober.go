package health

import (
	"context"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/expo-updates-server/internal/logger"
)

// ServiceName is the health service name reported for the update endpoints.
const ServiceName = "expo.updates.v1.Updates"

// Default probing parameters.
const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// Store is the part of the content store the prober exercises.
type Store interface {
	ListFolders(ctx context.Context, prefix string) ([]string, error)
}

// Prober keeps the health status of the update service in sync with the store.
type Prober struct {
	// store is probed with a root listing.
	store Store
	// server publishes statuses to gRPC health clients.
	server *grpchealth.Server
	// interval is the delay between probes.
	interval time.Duration
	// timeout bounds a single probe.
	timeout time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithInterval overrides the delay between probes.
func WithInterval(interval time.Duration) Option {
	return func(p *Prober) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithTimeout overrides the per-probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Prober) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewProber creates a prober. Until the first probe the service is NOT_SERVING.
func NewProber(store Store, opts ...Option) *Prober {
	p := &Prober{
		store:    store,
		server:   grpchealth.NewServer(),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.server.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return p
}

// Server returns the health server to register on a gRPC server.
func (p *Prober) Server() healthpb.HealthServer {
	return p.server
}

// Probe lists the store once and publishes the resulting status.
func (p *Prober) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING

	if _, err := p.store.ListFolders(probeCtx, ""); err != nil {
		logger.WarnKV(ctx, "Content store probe failed", "error", err)

		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	// The empty service name reports overall server health.
	p.server.SetServingStatus("", status)
	p.server.SetServingStatus(ServiceName, status)

	return status
}

// Run probes until ctx is done, then marks every service NOT_SERVING.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			p.server.Shutdown()

			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

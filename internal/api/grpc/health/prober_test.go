package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// fakeStore fails while broken is set.
type fakeStore struct {
	broken atomic.Bool
	calls  atomic.Int64
}

func (s *fakeStore) ListFolders(ctx context.Context, _ string) ([]string, error) {
	s.calls.Add(1)

	if s.broken.Load() {
		return nil, errors.New("store unavailable")
	}

	return nil, ctx.Err()
}

func status(t *testing.T, p *Prober, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	response, err := p.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)

	return response.GetStatus()
}

// TestProber_Probe follows the store availability.
func TestProber_Probe(t *testing.T) {
	t.Parallel()

	store := new(fakeStore)
	p := NewProber(store)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, p, ServiceName))

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, p.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, p, ServiceName))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, p, ""))

	store.broken.Store(true)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, p.Probe(context.Background()))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, p, ServiceName))
}

// TestProber_Run probes on every tick and shuts down with the context.
func TestProber_Run(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		store := new(fakeStore)
		p := NewProber(store, WithInterval(time.Second), WithTimeout(time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		go func() {
			p.Run(ctx)
			close(done)
		}()

		// Wait for the initial probe.
		synctest.Wait()
		require.Equal(t, int64(1), store.calls.Load())
		require.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, p, ServiceName))

		time.Sleep(3 * time.Second)
		synctest.Wait()
		require.Equal(t, int64(4), store.calls.Load())

		cancel()
		<-done

		require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, p, ServiceName))
	})
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestNoop ensures the no-op implementation accepts every call.
func TestNoop(t *testing.T) {
	t.Parallel()

	var m Metrics = Noop{}

	m.ObserveRequest("manifest", "manifest", 0.1)
	m.IncAssetsHashed(true)
}

// TestProm verifies counters and histograms are recorded with their labels.
func TestProm(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewProm("updates", reg)

	m.ObserveRequest("manifest", "no_update", 0.02)
	m.ObserveRequest("manifest", "no_update", 0.03)
	m.IncAssetsHashed(false)
	m.IncAssetsHashed(true)
	m.IncAssetsHashed(true)

	require.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues("manifest", "no_update")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.assetsHashed.WithLabelValues("false")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.assetsHashed.WithLabelValues("true")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

// TestHandler checks the exposition endpoint renders registered metrics.
func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewProm("updates", reg)
	m.ObserveRequest("assets", "ok", 0.5)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `updates_requests_total{outcome="ok",route="assets"} 1`)
}

package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records request outcomes and asset hashing work.
type Metrics interface {
	ObserveRequest(route, outcome string, durationSeconds float64)
	IncAssetsHashed(cached bool)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

// ObserveRequest does nothing.
func (Noop) ObserveRequest(string, string, float64) {}

// IncAssetsHashed does nothing.
func (Noop) IncAssetsHashed(bool) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	assetsHashed *prometheus.CounterVec
}

// NewProm registers the collectors with registerer under namespace.
// It panics when the collectors are already registered.
func NewProm(namespace string, registerer prometheus.Registerer) *Prom {
	p := &Prom{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Update requests by route and outcome",
		}, []string{"route", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Update request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		assetsHashed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_hashed_total",
			Help:      "Asset digests resolved, split by cache hits",
		}, []string{"cached"}),
	}

	registerer.MustRegister(p.requests, p.latency, p.assetsHashed)

	return p
}

// ObserveRequest counts one request and records its latency.
func (p *Prom) ObserveRequest(route, outcome string, durationSeconds float64) {
	p.requests.WithLabelValues(route, outcome).Inc()
	p.latency.WithLabelValues(route).Observe(durationSeconds)
}

// IncAssetsHashed counts one resolved asset digest.
func (p *Prom) IncAssetsHashed(cached bool) {
	p.assetsHashed.WithLabelValues(strconv.FormatBool(cached)).Inc()
}

// Handler serves the collectors of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

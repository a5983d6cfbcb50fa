package updates

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/metrics"
	"github.com/oshokin/expo-updates-server/internal/service/manifest"
)

// Routes served by the handler.
const (
	ManifestPath = "/api/manifest"
	AssetsPath   = manifest.AssetsPath
)

// Route labels used in metrics.
const (
	routeManifest = "manifest"
	routeAssets   = "assets"
)

// Outcome labels used in metrics.
const (
	outcomeManifest = "manifest"
	outcomeRollback = "rollback"
	outcomeNoUpdate = "no_update"
	outcomeAsset    = "asset"
	outcomeError    = "error"
)

// Engine resolves update checks and asset fetches.
type Engine interface {
	Resolve(ctx context.Context, req *update.Request) (update.Outcome, error)
	ServeAsset(ctx context.Context, key update.BundleKey, objectKey string) (*manifest.Asset, error)
}

// Handler serves the manifest and assets endpoints.
type Handler struct {
	engine   Engine
	packager *Packager
	metrics  metrics.Metrics
	// limiter throttles the manifest endpoint; nil disables throttling.
	limiter *rate.Limiter
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMetrics records per-route request metrics.
func WithMetrics(m metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithRateLimit throttles manifest requests to rps with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) HandlerOption {
	return func(h *Handler) {
		if rps <= 0 {
			h.limiter = nil

			return
		}

		h.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// NewHandler creates a handler.
func NewHandler(engine Engine, packager *Packager, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:   engine,
		packager: packager,
		metrics:  metrics.Noop{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register mounts the update routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+ManifestPath, h.serveManifest)
	mux.HandleFunc("GET "+AssetsPath, h.serveAsset)
}

func (h *Handler) serveManifest(w http.ResponseWriter, r *http.Request) {
	ctx, finish := h.begin(r, routeManifest)

	outcome, status := h.manifest(ctx, w, r)

	finish(outcome, status)
}

func (h *Handler) manifest(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, int) {
	if h.limiter != nil && !h.limiter.Allow() {
		return outcomeError, writeError(ctx, w, errTooManyRequests)
	}

	req, err := ParseManifestRequest(r)
	if err != nil {
		return outcomeError, writeError(ctx, w, err)
	}

	ctx = logger.WithKV(ctx,
		"project", req.Project,
		"channel", req.Channel,
		"platform", req.Platform,
		"runtime_version", req.RuntimeVersion,
		"protocol_version", int(req.ProtocolVersion),
	)

	outcome, err := h.engine.Resolve(ctx, req)
	if err != nil {
		return outcomeError, writeError(ctx, w, err)
	}

	var (
		payload update.Payload
		label   string
	)

	switch o := outcome.(type) {
	case *update.ManifestOutcome:
		payload, label = o.Manifest, outcomeManifest
	case *update.DirectiveOutcome:
		payload, label = o.Directive, outcomeRollback
	case *update.NoUpdateAvailable:
		logger.DebugKV(ctx, "No update available", "reason", o.Reason)

		directive, directiveErr := manifest.NoUpdateAvailableDirective(req.ProtocolVersion)
		if directiveErr != nil {
			return outcomeError, writeError(ctx, w, directiveErr)
		}

		payload, label = directive, outcomeNoUpdate
	default:
		logger.ErrorKV(ctx, "Unexpected resolution outcome", "outcome", outcome)

		return outcomeError, writeError(ctx, w, errUnexpectedOutcome)
	}

	response, err := h.packager.Package(payload, req.ProtocolVersion, req.ExpectSignature)
	if err != nil {
		return outcomeError, writeError(ctx, w, err)
	}

	if err = response.Write(w); err != nil {
		logger.DebugKV(ctx, "Failed to write response", "error", err)
	}

	return label, response.Status
}

func (h *Handler) serveAsset(w http.ResponseWriter, r *http.Request) {
	ctx, finish := h.begin(r, routeAssets)

	outcome, status := h.asset(ctx, w, r)

	finish(outcome, status)
}

func (h *Handler) asset(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, int) {
	req, err := ParseAssetRequest(r)
	if err != nil {
		return outcomeError, writeError(ctx, w, err)
	}

	asset, err := h.engine.ServeAsset(ctx, req.BundleKey, req.ObjectKey)
	if err != nil {
		return outcomeError, writeError(ctx, w, err)
	}

	w.Header().Set(HeaderContentType, asset.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.WriteHeader(http.StatusOK)

	if _, err = w.Write(asset.Data); err != nil {
		logger.DebugKV(ctx, "Failed to write asset", "error", err)
	}

	logger.DebugKV(ctx, "Served asset", "asset", req.ObjectKey, "size", humanize.Bytes(uint64(len(asset.Data))))

	return outcomeAsset, http.StatusOK
}

// begin attaches a request-scoped logger and returns a completion callback
// that records metrics and the access log line.
func (h *Handler) begin(r *http.Request, route string) (context.Context, func(outcome string, status int)) {
	started := time.Now()

	ctx := logger.WithKV(r.Context(), "request_id", uuid.NewString(), "route", route)

	return ctx, func(outcome string, status int) {
		elapsed := time.Since(started)

		h.metrics.ObserveRequest(route, outcome, elapsed.Seconds())
		logger.InfoKV(ctx, "Request served",
			"status", status,
			"outcome", outcome,
			"duration", elapsed,
		)
	}
}

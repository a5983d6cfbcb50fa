package manifest

import (
	"context"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/metrics"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// AssetsPath is the route serving assets referenced by manifest URLs.
const AssetsPath = "/api/assets"

// defaultHashConcurrency bounds the number of assets fetched and hashed at once.
const defaultHashConcurrency = 8

// DigestCache stores asset digests keyed by object key. Bundles are immutable,
// so an entry never goes stale while its object exists.
type DigestCache interface {
	Get(ctx context.Context, objectKey string) (update.Digests, bool, error)
	Set(ctx context.Context, objectKey string, digests update.Digests) error
}

// Engine resolves update checks against a content store.
// It is safe for concurrent use.
type Engine struct {
	// repo is the content store holding bundles.
	repo blob.Repository
	// publicURL is the base of generated asset URLs, without trailing slash.
	publicURL string
	// cache optionally short-circuits asset hashing.
	cache DigestCache
	// metrics counts hashed assets.
	metrics metrics.Metrics
	// hashConcurrency bounds concurrent asset fetches per manifest.
	hashConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDigestCache enables the read-through digest cache.
func WithDigestCache(cache DigestCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithMetrics records engine metrics.
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithHashConcurrency overrides how many assets are hashed in parallel.
func WithHashConcurrency(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.hashConcurrency = limit
		}
	}
}

// NewEngine creates an engine reading from repo and building asset URLs under publicURL.
func NewEngine(repo blob.Repository, publicURL string, opts ...Option) *Engine {
	e := &Engine{
		repo:            repo,
		publicURL:       strings.TrimRight(publicURL, "/"),
		metrics:         metrics.Noop{},
		hashConcurrency: defaultHashConcurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Resolve runs one update check and returns exactly one outcome.
// A *update.NoUpdateAvailable outcome is not an error; callers turn it into
// a directive with NoUpdateAvailableDirective.
func (e *Engine) Resolve(ctx context.Context, req *update.Request) (update.Outcome, error) {
	bundlePath, err := e.ResolveLatestBundle(ctx, req.BundleKey)
	if err != nil {
		return nil, err
	}

	updateType, err := e.Classify(ctx, bundlePath)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Resolved update bundle", "bundle", bundlePath, "update_type", updateType.String())

	if updateType == update.UpdateTypeRollback {
		return e.resolveRollback(ctx, bundlePath, req)
	}

	return e.resolveNormal(ctx, bundlePath, req)
}

// NoUpdateAvailableDirective builds the directive telling the client it is current.
// The directive does not exist before protocol version 1.
func NoUpdateAvailableDirective(protocolVersion update.ProtocolVersion) (*update.Directive, error) {
	if !protocolVersion.SupportsDirectives() {
		return nil, update.ErrUnsupportedOnProtocolV0
	}

	return &update.Directive{Type: update.DirectiveNoUpdateAvailable}, nil
}

package manifest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// demoKey is the bundle lineage used across engine tests.
//
//nolint:gochecknoglobals // Shared read-only fixture.
var demoKey = update.BundleKey{
	Project:        "demo",
	Channel:        update.ChannelProduction,
	Platform:       update.PlatformIOS,
	RuntimeVersion: "1.0.0",
}

// testPublicURL is the base of asset URLs built in tests.
const testPublicURL = "https://updates.example.com"

// fixtureBundle describes one bundle to seed into a repository.
type fixtureBundle struct {
	epoch    string
	rollback *time.Time
	noConfig bool
	assets   map[string][]byte
}

// seedBundle writes a complete normal bundle (or a rollback marker) and
// returns its path.
func seedBundle(t *testing.T, repo *blob.MemoryRepository, key update.BundleKey, bundle fixtureBundle) string {
	t.Helper()

	ctx := context.Background()
	bundlePath := key.Prefix() + bundle.epoch

	if bundle.rollback != nil {
		require.NoError(t, repo.PutAt(ctx, update.ObjectKey(bundlePath, update.RollbackMarkerFilename),
			nil, *bundle.rollback))

		return bundlePath
	}

	metadata := update.BundleMetadata{
		Version: 0,
		Bundler: "metro",
		FileMetadata: map[update.Platform]update.PlatformMetadata{
			key.Platform: {
				Bundle: "bundles/" + string(key.Platform) + "-abc.js",
				Assets: []update.AssetDescriptor{
					{Path: "assets/4f1cb2cac2370cd5050681232e8575a8", Ext: "png"},
					{Path: "assets/fonts/0a1b2c", Ext: "ttf"},
				},
			},
		},
	}

	raw, err := json.Marshal(metadata)
	require.NoError(t, err)

	require.NoError(t, repo.PutAt(ctx, update.ObjectKey(bundlePath, update.MetadataFilename),
		raw, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	if !bundle.noConfig {
		require.NoError(t, repo.Put(ctx, update.ObjectKey(bundlePath, update.ExpoConfigFilename),
			[]byte(`{"name":"demo","slug":"demo","runtimeVersion":"1.0.0"}`)))
	}

	files := map[string][]byte{
		"bundles/" + string(key.Platform) + "-abc.js": []byte("console.log('hello');"),
		"assets/4f1cb2cac2370cd5050681232e8575a8":     []byte("\x89PNG fake image"),
		"assets/fonts/0a1b2c":                         []byte("fake font"),
	}

	for path, data := range bundle.assets {
		files[path] = data
	}

	for path, data := range files {
		require.NoError(t, repo.Put(ctx, update.ObjectKey(bundlePath, path), data))
	}

	return bundlePath
}

// countingRepository counts Get calls and can fail selected keys.
type countingRepository struct {
	blob.Repository

	gets atomic.Int64

	mu    sync.Mutex
	fails map[string]error
}

func newCountingRepository(repo blob.Repository) *countingRepository {
	return &countingRepository{
		Repository: repo,
		fails:      make(map[string]error),
	}
}

func (r *countingRepository) failOn(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fails[key] = err
}

func (r *countingRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.gets.Add(1)

	r.mu.Lock()
	err := r.fails[key]
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return r.Repository.Get(ctx, key)
}

// mapCache is an in-process DigestCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]update.Digests
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]update.Digests)}
}

func (c *mapCache) Get(_ context.Context, key string) (update.Digests, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.entries[key]

	return d, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, d update.Digests) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = d

	return nil
}

// countingMetrics records IncAssetsHashed calls.
type countingMetrics struct {
	hashed atomic.Int64
	cached atomic.Int64
}

func (*countingMetrics) ObserveRequest(string, string, float64) {}

func (m *countingMetrics) IncAssetsHashed(cached bool) {
	if cached {
		m.cached.Add(1)

		return
	}

	m.hashed.Add(1)
}

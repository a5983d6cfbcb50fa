package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

func newCache(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	c, err := Dial(context.Background(), srv.Addr(), ttl)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	return c, srv
}

// TestRedis_GetSet covers misses, hits and key namespacing.
func TestRedis_GetSet(t *testing.T) {
	t.Parallel()

	c, srv := newCache(t, time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "demo/production/ios/1.0.0/1/bundles/app.js")
	require.NoError(t, err)
	require.False(t, ok)

	want := update.Digests{Hash: "abc", Key: "def"}
	require.NoError(t, c.Set(ctx, "demo/production/ios/1.0.0/1/bundles/app.js", want))

	got, ok, err := c.Get(ctx, "demo/production/ios/1.0.0/1/bundles/app.js")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.True(t, srv.Exists(keyPrefix+"demo/production/ios/1.0.0/1/bundles/app.js"))
}

// TestRedis_TTL ensures entries expire after the configured TTL.
func TestRedis_TTL(t *testing.T) {
	t.Parallel()

	c, srv := newCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", update.Digests{Hash: "h", Key: "k"}))
	require.Equal(t, time.Minute, srv.TTL(keyPrefix+"k"))

	srv.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRedis_CorruptEntry reports undecodable entries as errors and incomplete ones as misses.
func TestRedis_CorruptEntry(t *testing.T) {
	t.Parallel()

	c, srv := newCache(t, 0)
	ctx := context.Background()

	require.NoError(t, srv.Set(keyPrefix+"broken", "not json"))
	require.NoError(t, srv.Set(keyPrefix+"partial", `{"hash":"h"}`))

	_, _, err := c.Get(ctx, "broken")
	require.Error(t, err)

	_, ok, err := c.Get(ctx, "partial")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestDial_Unreachable fails fast when nothing listens at the address.
func TestDial_Unreachable(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := Dial(context.Background(), addr, time.Minute)
	require.Error(t, err)
}

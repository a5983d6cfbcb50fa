package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// TestResolveLatestBundle_NumericOrdering picks the largest epoch, not the lexicographically last.
func TestResolveLatestBundle_NumericOrdering(t *testing.T) {
	t.Parallel()

	repo := blob.NewMemoryRepository()
	for _, epoch := range []string{"5", "20", "100", "9"} {
		seedBundle(t, repo, demoKey, fixtureBundle{epoch: epoch})
	}

	got, err := NewEngine(repo, testPublicURL).ResolveLatestBundle(context.Background(), demoKey)
	require.NoError(t, err)
	require.Equal(t, "demo/production/ios/1.0.0/100", got)
}

// TestResolveLatestBundle_Example mirrors a typical two-bundle lineage.
func TestResolveLatestBundle_Example(t *testing.T) {
	t.Parallel()

	repo := blob.NewMemoryRepository()
	seedBundle(t, repo, demoKey, fixtureBundle{epoch: "1700000000"})
	seedBundle(t, repo, demoKey, fixtureBundle{epoch: "1700000500"})

	got, err := NewEngine(repo, testPublicURL).ResolveLatestBundle(context.Background(), demoKey)
	require.NoError(t, err)
	require.Equal(t, "demo/production/ios/1.0.0/1700000500", got)
}

// TestResolveLatestBundle_Unsupported fails for unknown runtimes and non-numeric folders.
func TestResolveLatestBundle_Unsupported(t *testing.T) {
	t.Parallel()

	repo := blob.NewMemoryRepository()
	engine := NewEngine(repo, testPublicURL)

	_, err := engine.ResolveLatestBundle(context.Background(), demoKey)
	require.ErrorIs(t, err, update.ErrUnsupportedRuntimeVersion)

	seedBundle(t, repo, demoKey, fixtureBundle{epoch: "latest"})

	_, err = engine.ResolveLatestBundle(context.Background(), demoKey)
	require.ErrorIs(t, err, update.ErrUnsupportedRuntimeVersion)

	other := demoKey
	other.RuntimeVersion = "2.0.0"
	seedBundle(t, repo, other, fixtureBundle{epoch: "1"})

	_, err = engine.ResolveLatestBundle(context.Background(), demoKey)
	require.ErrorIs(t, err, update.ErrUnsupportedRuntimeVersion)
}

// TestLatestEpoch covers ignored segments and the tie-break.
func TestLatestEpoch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		folders []string
		want    string
		wantOK  bool
	}{
		{name: "empty", folders: nil},
		{name: "only junk", folders: []string{"p/x/", "p//", "p/-/"}},
		{name: "skips junk", folders: []string{"p/x/", "p/7/", "p/3/"}, want: "7", wantOK: true},
		{name: "tie breaks lexicographically", folders: []string{"p/10/", "p/010/"}, want: "10", wantOK: true},
		{name: "tie is order independent", folders: []string{"p/010/", "p/10/"}, want: "10", wantOK: true},
		{name: "negative loses", folders: []string{"p/-5/", "p/0/"}, want: "0", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := latestEpoch(tt.folders)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestClassify detects rollback markers even next to metadata.json.
func TestClassify(t *testing.T) {
	t.Parallel()

	repo := blob.NewMemoryRepository()
	engine := NewEngine(repo, testPublicURL)
	ctx := context.Background()

	normal := seedBundle(t, repo, demoKey, fixtureBundle{epoch: "1"})

	got, err := engine.Classify(ctx, normal)
	require.NoError(t, err)
	require.Equal(t, update.UpdateTypeNormal, got)

	commit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rollback := seedBundle(t, repo, demoKey, fixtureBundle{epoch: "2", rollback: &commit})

	got, err = engine.Classify(ctx, rollback)
	require.NoError(t, err)
	require.Equal(t, update.UpdateTypeRollback, got)

	// A marker wins even when the bundle also has metadata.
	require.NoError(t, repo.Put(ctx, update.ObjectKey(normal, update.RollbackMarkerFilename), nil))

	got, err = engine.Classify(ctx, normal)
	require.NoError(t, err)
	require.Equal(t, update.UpdateTypeRollback, got)

	// A nested file named rollback does not count.
	require.NoError(t, repo.Put(ctx, update.ObjectKey(rollback+"0", "assets/rollback"), nil))

	got, err = engine.Classify(ctx, rollback+"0")
	require.NoError(t, err)
	require.Equal(t, update.UpdateTypeNormal, got)
}

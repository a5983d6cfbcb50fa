package publisher

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
	"github.com/oshokin/expo-updates-server/internal/service/manifest"
)

// publishedAt is the fixed clock used for bundle epochs.
//
//nolint:gochecknoglobals // Shared read-only fixture.
var publishedAt = time.Unix(1700000000, 0)

// demoTarget publishes to the demo project on production.
//
//nolint:gochecknoglobals // Shared read-only fixture.
var demoTarget = Target{
	Project:        "demo",
	Channel:        update.ChannelProduction,
	RuntimeVersion: "1.0.0",
}

// exportedFiles returns a two-platform export as produced by the bundler.
func exportedFiles(t *testing.T) map[string][]byte {
	t.Helper()

	metadata := update.BundleMetadata{
		Version: 0,
		Bundler: "metro",
		FileMetadata: map[update.Platform]update.PlatformMetadata{
			update.PlatformIOS: {
				Bundle: "bundles/ios-abc.js",
				Assets: []update.AssetDescriptor{{Path: "assets/4f1c", Ext: "png"}},
			},
			update.PlatformAndroid: {
				Bundle: "bundles/android-def.js",
				Assets: []update.AssetDescriptor{{Path: "assets/4f1c", Ext: "png"}},
			},
		},
	}

	raw, err := json.Marshal(metadata)
	require.NoError(t, err)

	return map[string][]byte{
		update.MetadataFilename:   raw,
		update.ExpoConfigFilename: []byte(`{"name":"demo","slug":"demo"}`),
		"bundles/ios-abc.js":      []byte("ios();"),
		"bundles/android-def.js":  []byte("android();"),
		"assets/4f1c":             []byte("png bytes"),
	}
}

func newTestPublisher(repo blob.Repository) *Publisher {
	return NewPublisher(repo, WithClock(func() time.Time { return publishedAt }))
}

// TestPublisher_PublishServesManifest verifies a published bundle resolves to a manifest.
func TestPublisher_PublishServesManifest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := blob.NewMemoryRepository()

	bundlePaths, err := newTestPublisher(repo).Publish(ctx, demoTarget, exportedFiles(t))
	require.NoError(t, err)
	require.Equal(t, []string{
		"demo/production/android/1.0.0/1700000000",
		"demo/production/ios/1.0.0/1700000000",
	}, bundlePaths)

	engine := manifest.NewEngine(repo, "https://updates.example.com")

	outcome, err := engine.Resolve(ctx, &update.Request{
		BundleKey: update.BundleKey{
			Project:        "demo",
			Channel:        update.ChannelProduction,
			Platform:       update.PlatformIOS,
			RuntimeVersion: "1.0.0",
		},
		ProtocolVersion: update.ProtocolV1,
	})
	require.NoError(t, err)

	manifestOutcome, ok := outcome.(*update.ManifestOutcome)
	require.True(t, ok, "unexpected outcome %T", outcome)
	require.Equal(t, "application/javascript", manifestOutcome.Manifest.LaunchAsset.ContentType)
	require.Len(t, manifestOutcome.Manifest.Assets, 1)
}

// TestPublisher_PublishSelectedPlatform verifies the platform filter.
func TestPublisher_PublishSelectedPlatform(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := blob.NewMemoryRepository()

	target := demoTarget
	target.Platforms = []update.Platform{update.PlatformIOS}

	bundlePaths, err := newTestPublisher(repo).Publish(ctx, target, exportedFiles(t))
	require.NoError(t, err)
	require.Equal(t, []string{"demo/production/ios/1.0.0/1700000000"}, bundlePaths)

	folders, err := repo.ListFolders(ctx, "demo/production/")
	require.NoError(t, err)
	require.Equal(t, []string{"demo/production/ios/"}, folders)
}

// TestPublisher_PublishRejects verifies incomplete exports and bad targets fail before uploading.
func TestPublisher_PublishRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target func(Target) Target
		files  func(map[string][]byte)
		err    error
	}{
		{
			name:  "missing metadata",
			files: func(f map[string][]byte) { delete(f, update.MetadataFilename) },
			err:   errMissingFile,
		},
		{
			name:  "missing expo config",
			files: func(f map[string][]byte) { delete(f, update.ExpoConfigFilename) },
			err:   errMissingFile,
		},
		{
			name:  "missing asset",
			files: func(f map[string][]byte) { delete(f, "assets/4f1c") },
			err:   errMissingFile,
		},
		{
			name:  "malformed metadata",
			files: func(f map[string][]byte) { f[update.MetadataFilename] = []byte("{") },
			err:   update.ErrMalformedMetadata,
		},
		{
			name: "platform not in bundle",
			files: func(f map[string][]byte) {
				f[update.MetadataFilename] = []byte(`{"fileMetadata":{"ios":{"bundle":"bundles/ios-abc.js"}}}`)
			},
			target: func(target Target) Target {
				target.Platforms = []update.Platform{update.PlatformAndroid}
				return target
			},
			err: update.ErrPlatformNotInBundle,
		},
		{
			name: "unknown channel",
			target: func(target Target) Target {
				target.Channel = "beta"
				return target
			},
			err: errInvalidTarget,
		},
		{
			name: "project with slash",
			target: func(target Target) Target {
				target.Project = "demo/../other"
				return target
			},
			err: errInvalidTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := blob.NewMemoryRepository()
			files := exportedFiles(t)
			target := demoTarget

			if tt.files != nil {
				tt.files(files)
			}

			if tt.target != nil {
				target = tt.target(target)
			}

			_, err := newTestPublisher(repo).Publish(context.Background(), target, files)
			require.ErrorIs(t, err, tt.err)

			folders, listErr := repo.ListFolders(context.Background(), "")
			require.NoError(t, listErr)
			require.Empty(t, folders)
		})
	}
}

// TestPublisher_RefusesExistingBundle verifies an epoch folder is never overwritten.
func TestPublisher_RefusesExistingBundle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub := newTestPublisher(blob.NewMemoryRepository())

	_, err := pub.Publish(ctx, demoTarget, exportedFiles(t))
	require.NoError(t, err)

	_, err = pub.Publish(ctx, demoTarget, exportedFiles(t))
	require.ErrorIs(t, err, errBundleExists)
}

// TestPublisher_PublishRollback verifies the marker turns the newest bundle into a rollback.
func TestPublisher_PublishRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := blob.NewMemoryRepository()

	_, err := NewPublisher(repo, WithClock(func() time.Time { return publishedAt })).
		Publish(ctx, demoTarget, exportedFiles(t))
	require.NoError(t, err)

	target := demoTarget
	target.Platforms = []update.Platform{update.PlatformIOS}

	bundlePaths, err := NewPublisher(repo, WithClock(func() time.Time { return publishedAt.Add(time.Minute) })).
		PublishRollback(ctx, target)
	require.NoError(t, err)
	require.Equal(t, []string{"demo/production/ios/1.0.0/1700000060"}, bundlePaths)

	engine := manifest.NewEngine(repo, "https://updates.example.com")

	bundlePath, err := engine.ResolveLatestBundle(ctx, update.BundleKey{
		Project:        "demo",
		Channel:        update.ChannelProduction,
		Platform:       update.PlatformIOS,
		RuntimeVersion: "1.0.0",
	})
	require.NoError(t, err)

	updateType, err := engine.Classify(ctx, bundlePath)
	require.NoError(t, err)
	require.Equal(t, update.UpdateTypeRollback, updateType)
}

// TestPublisher_RollbackNeedsPlatforms verifies rollbacks are never published implicitly.
func TestPublisher_RollbackNeedsPlatforms(t *testing.T) {
	t.Parallel()

	_, err := newTestPublisher(blob.NewMemoryRepository()).PublishRollback(context.Background(), demoTarget)
	require.ErrorIs(t, err, errNoPlatforms)
}

// TestLoadSource_DirectoryAndArchive verifies both export layouts load the same files.
func TestLoadSource_DirectoryAndArchive(t *testing.T) {
	t.Parallel()

	files := exportedFiles(t)
	dir := t.TempDir()

	for relative, data := range files {
		name := filepath.Join(dir, "dist", filepath.FromSlash(relative))
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o750))
		require.NoError(t, os.WriteFile(name, data, 0o600))
	}

	fromDirectory, err := LoadSource(filepath.Join(dir, "dist"))
	require.NoError(t, err)
	require.Equal(t, files, fromDirectory)

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dist/", Typeflag: tar.TypeDir, Mode: 0o755}))

	for relative, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "dist/" + relative,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(data)),
		}))

		_, err = tw.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	archive := filepath.Join(dir, "updates.tar.gz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o600))

	fromArchive, err := LoadSource(archive)
	require.NoError(t, err)
	require.Equal(t, files, fromArchive)
}

// TestArchivePath verifies entries escaping the bundle are rejected.
func TestArchivePath(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]string{
		"dist/bundles/ios.js": "bundles/ios.js",
		"./metadata.json":     "metadata.json",
		"assets/a":            "assets/a",
	} {
		got, err := archivePath(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got)
	}

	for _, name := range []string{"../etc/passwd", "/abs", "dist/../../x", "."} {
		_, err := archivePath(name)
		require.ErrorIs(t, err, errUnsafePath, name)
	}
}

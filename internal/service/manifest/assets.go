package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// Asset query parameters understood by the assets endpoint.
const (
	AssetQueryAsset          = "asset"
	AssetQueryRuntimeVersion = "runtimeVersion"
	AssetQueryPlatform       = "platform"
	AssetQueryProject        = "id"
	AssetQueryChannel        = "channel"
)

// assetSource names one file of a bundle to describe.
type assetSource struct {
	// relativePath is the bundle-relative path from metadata.json.
	relativePath string
	// ext is the descriptor extension; ignored for the launch asset.
	ext string
	// isLaunch marks the JavaScript entry point.
	isLaunch bool
}

// BuildAssetMetadata fetches one asset and derives its manifest entry.
func (e *Engine) BuildAssetMetadata(
	ctx context.Context,
	key update.BundleKey,
	bundlePath string,
	relativePath string,
	ext string,
	isLaunch bool,
) (*update.AssetMetadata, error) {
	return e.buildAssetMetadata(ctx, key, bundlePath, assetSource{
		relativePath: relativePath,
		ext:          ext,
		isLaunch:     isLaunch,
	})
}

func (e *Engine) buildAssetMetadata(
	ctx context.Context,
	key update.BundleKey,
	bundlePath string,
	source assetSource,
) (*update.AssetMetadata, error) {
	objectKey := update.ObjectKey(bundlePath, source.relativePath)

	// Resolve the content type first so unknown extensions fail without I/O.
	fileExtension, contentType := launchAssetExtension, launchAssetContentType

	if !source.isLaunch {
		var err error

		contentType, err = contentTypeForExtension(source.ext)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", objectKey, err)
		}

		fileExtension = "." + strings.TrimPrefix(source.ext, ".")
	}

	digests, err := e.digests(ctx, objectKey)
	if err != nil {
		return nil, err
	}

	return &update.AssetMetadata{
		Hash:          digests.Hash,
		Key:           digests.Key,
		FileExtension: fileExtension,
		ContentType:   contentType,
		URL:           e.assetURL(key, objectKey),
	}, nil
}

// digests returns the asset digests, consulting the cache when one is configured.
func (e *Engine) digests(ctx context.Context, objectKey string) (update.Digests, error) {
	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, objectKey)
		if err != nil {
			logger.WarnKV(ctx, "Digest cache read failed", "key", objectKey, "error", err)
		} else if ok {
			e.metrics.IncAssetsHashed(true)

			return cached, nil
		}
	}

	data, err := e.repo.Get(ctx, objectKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return update.Digests{}, fmt.Errorf("%w: %s", update.ErrAssetNotFound, objectKey)
		}

		return update.Digests{}, fmt.Errorf("fetch asset %s: %w", objectKey, err)
	}

	// A cancelled request must not publish digests of a partial read.
	if err = ctx.Err(); err != nil {
		return update.Digests{}, err
	}

	digests := computeDigests(data)
	e.metrics.IncAssetsHashed(false)

	if e.cache != nil {
		if err = e.cache.Set(ctx, objectKey, digests); err != nil {
			logger.WarnKV(ctx, "Digest cache write failed", "key", objectKey, "error", err)
		}
	}

	return digests, nil
}

// assetURL points back at the assets endpoint with enough context to
// re-resolve objectKey inside its bundle.
func (e *Engine) assetURL(key update.BundleKey, objectKey string) string {
	query := url.Values{
		AssetQueryAsset:          []string{objectKey},
		AssetQueryRuntimeVersion: []string{key.RuntimeVersion},
		AssetQueryPlatform:       []string{string(key.Platform)},
		AssetQueryProject:        []string{key.Project},
		AssetQueryChannel:        []string{string(key.Channel)},
	}

	return e.publicURL + AssetsPath + "?" + query.Encode()
}

package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// Asset is the content served for one asset URL.
type Asset struct {
	// Data is the exact stored bytes.
	Data []byte
	// ContentType matches the contentType recorded in the manifest.
	ContentType string
}

// ServeAsset inverts an asset URL: objectKey must live inside a bundle of key
// and be listed in that bundle's metadata for key.Platform.
func (e *Engine) ServeAsset(ctx context.Context, key update.BundleKey, objectKey string) (*Asset, error) {
	bundlePath, relativePath, err := splitAssetKey(key, objectKey)
	if err != nil {
		return nil, err
	}

	doc, err := e.loadMetadata(ctx, bundlePath)
	if err != nil {
		return nil, err
	}

	platformMetadata, ok := doc.metadata.FileMetadata[key.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", update.ErrPlatformNotInBundle, key.Platform, bundlePath)
	}

	descriptor, isLaunch, found := platformMetadata.Lookup(relativePath)
	if !found {
		return nil, fmt.Errorf("%w: %s", update.ErrAssetNotFound, objectKey)
	}

	contentType := launchAssetContentType
	if !isLaunch {
		if contentType, err = contentTypeForExtension(descriptor.Ext); err != nil {
			return nil, fmt.Errorf("asset %s: %w", objectKey, err)
		}
	}

	data, err := e.repo.Get(ctx, objectKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", update.ErrAssetNotFound, objectKey)
		}

		return nil, fmt.Errorf("fetch asset %s: %w", objectKey, err)
	}

	return &Asset{
		Data:        data,
		ContentType: contentType,
	}, nil
}

// splitAssetKey separates "{prefix}{epoch}/{relative}" into the bundle path
// and the bundle-relative asset path.
func splitAssetKey(key update.BundleKey, objectKey string) (string, string, error) {
	prefix := key.Prefix()

	rest, ok := strings.CutPrefix(objectKey, prefix)
	if !ok {
		return "", "", fmt.Errorf("%w: asset %q is outside %s", update.ErrInvalidRequest, objectKey, prefix)
	}

	epoch, relativePath, ok := strings.Cut(rest, "/")
	if !ok || epoch == "" || relativePath == "" {
		return "", "", fmt.Errorf("%w: malformed asset key %q", update.ErrInvalidRequest, objectKey)
	}

	for segment := range strings.SplitSeq(relativePath, "/") {
		if segment == ".." {
			return "", "", fmt.Errorf("%w: malformed asset key %q", update.ErrInvalidRequest, objectKey)
		}
	}

	return prefix + epoch, relativePath, nil
}

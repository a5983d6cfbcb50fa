package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// bundleDocument is a decoded metadata.json together with its derived identity.
type bundleDocument struct {
	// id is the manifest id derived from the raw document bytes.
	id string
	// createdAt is the last-modified time of metadata.json.
	createdAt time.Time
	// metadata is the decoded document.
	metadata update.BundleMetadata
}

// resolveNormal serves a manifest unless a v1 client already runs this bundle.
func (e *Engine) resolveNormal(
	ctx context.Context,
	bundlePath string,
	req *update.Request,
) (update.Outcome, error) {
	doc, err := e.loadMetadata(ctx, bundlePath)
	if err != nil {
		return nil, err
	}

	// Protocol v0 has no way to say "no update", so it always gets the manifest.
	if req.ProtocolVersion.SupportsDirectives() && update.SameUpdateID(req.CurrentUpdateID, doc.id) {
		return &update.NoUpdateAvailable{Reason: "client runs the latest update"}, nil
	}

	manifest, err := e.buildManifest(ctx, req.BundleKey, bundlePath, doc)
	if err != nil {
		return nil, err
	}

	return &update.ManifestOutcome{Manifest: manifest}, nil
}

// resolveRollback serves a rollBackToEmbedded directive.
func (e *Engine) resolveRollback(
	ctx context.Context,
	bundlePath string,
	req *update.Request,
) (update.Outcome, error) {
	if !req.ProtocolVersion.SupportsDirectives() {
		return nil, update.ErrUnsupportedOnProtocolV0
	}

	if req.EmbeddedUpdateID == "" {
		return nil, update.ErrMissingEmbeddedUpdateID
	}

	if update.SameUpdateID(req.CurrentUpdateID, req.EmbeddedUpdateID) {
		return &update.NoUpdateAvailable{Reason: "client already runs the embedded update"}, nil
	}

	marker := update.ObjectKey(bundlePath, update.RollbackMarkerFilename)

	info, err := e.repo.Head(ctx, marker)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", update.ErrRollbackNotFound, bundlePath)
		}

		return nil, fmt.Errorf("head rollback marker %s: %w", marker, err)
	}

	return &update.DirectiveOutcome{Directive: update.NewRollBackDirective(info.LastModified)}, nil
}

// loadMetadata reads and decodes metadata.json of a bundle.
func (e *Engine) loadMetadata(ctx context.Context, bundlePath string) (*bundleDocument, error) {
	metadataKey := update.ObjectKey(bundlePath, update.MetadataFilename)

	info, err := e.repo.Head(ctx, metadataKey)
	if err != nil {
		return nil, e.bundleReadError(bundlePath, metadataKey, err)
	}

	raw, err := e.repo.Get(ctx, metadataKey)
	if err != nil {
		return nil, e.bundleReadError(bundlePath, metadataKey, err)
	}

	var metadata update.BundleMetadata
	if err = json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", update.ErrMalformedMetadata, metadataKey, err)
	}

	return &bundleDocument{
		id:        manifestID(raw),
		createdAt: info.LastModified,
		metadata:  metadata,
	}, nil
}

func (e *Engine) bundleReadError(bundlePath, key string, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("%w: %s", update.ErrBundleNotFound, bundlePath)
	}

	return fmt.Errorf("read %s: %w", key, err)
}

// buildManifest assembles the full manifest of a normal bundle.
func (e *Engine) buildManifest(
	ctx context.Context,
	key update.BundleKey,
	bundlePath string,
	doc *bundleDocument,
) (*update.Manifest, error) {
	platformMetadata, ok := doc.metadata.FileMetadata[key.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", update.ErrPlatformNotInBundle, key.Platform, bundlePath)
	}

	expoConfig, err := e.loadExpoConfig(ctx, bundlePath)
	if err != nil {
		return nil, err
	}

	// Regular assets keep metadata.json order; the launch asset goes last.
	sources := make([]assetSource, 0, len(platformMetadata.Assets)+1)
	for _, asset := range platformMetadata.Assets {
		sources = append(sources, assetSource{relativePath: asset.Path, ext: asset.Ext})
	}

	sources = append(sources, assetSource{relativePath: platformMetadata.Bundle, isLaunch: true})

	built := make([]*update.AssetMetadata, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.hashConcurrency)

	for i, source := range sources {
		group.Go(func() error {
			asset, buildErr := e.buildAssetMetadata(groupCtx, key, bundlePath, source)
			if buildErr != nil {
				return buildErr
			}

			built[i] = asset

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return nil, err
	}

	return &update.Manifest{
		ID:             doc.id,
		CreatedAt:      update.FormatTimestamp(doc.createdAt),
		RuntimeVersion: key.RuntimeVersion,
		Assets:         built[:len(built)-1],
		LaunchAsset:    built[len(built)-1],
		Metadata:       map[string]any{},
		Extra:          update.ManifestExtra{ExpoClient: expoConfig},
	}, nil
}

// loadExpoConfig reads the exported app config; a bundle without it is broken.
func (e *Engine) loadExpoConfig(ctx context.Context, bundlePath string) (json.RawMessage, error) {
	configKey := update.ObjectKey(bundlePath, update.ExpoConfigFilename)

	raw, err := e.repo.Get(ctx, configKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", update.ErrMissingExpoConfig, bundlePath)
		}

		return nil, fmt.Errorf("read %s: %w", configKey, err)
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", update.ErrMalformedMetadata, configKey)
	}

	return json.RawMessage(raw), nil
}

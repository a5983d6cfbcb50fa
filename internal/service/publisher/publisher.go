package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// defaultUploadConcurrency bounds parallel uploads per bundle.
const defaultUploadConcurrency = 8

var (
	// errMissingFile is returned when the source lacks a required bundle file.
	errMissingFile = errors.New("update source is missing a required file")
	// errNoPlatforms is returned when no platform can be published.
	errNoPlatforms = errors.New("no platforms to publish")
	// errBundleExists is returned when the target epoch folder already holds objects.
	errBundleExists = errors.New("bundle already exists")
	// errInvalidTarget is returned for unusable project, channel or runtime values.
	errInvalidTarget = errors.New("invalid publish target")
)

// Target names the lineage a bundle is published to.
type Target struct {
	Project        string
	Channel        update.Channel
	RuntimeVersion string
	// Platforms limits publishing; empty publishes every platform in metadata.json.
	Platforms []update.Platform
}

// Publisher writes bundles into a content store.
type Publisher struct {
	// repo receives the uploaded objects.
	repo blob.Repository
	// now yields the bundle epoch.
	now func() time.Time
	// concurrency bounds parallel uploads.
	concurrency int
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClock overrides the source of bundle epochs.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPublisher creates a publisher writing to repo.
func NewPublisher(repo blob.Repository, opts ...Option) *Publisher {
	p := &Publisher{
		repo:        repo,
		now:         time.Now,
		concurrency: defaultUploadConcurrency,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Publish uploads files as a new bundle for every target platform and
// returns the created bundle paths. metadata.json is written last, so a
// bundle becomes resolvable only once its assets are in place.
func (p *Publisher) Publish(ctx context.Context, target Target, files map[string][]byte) ([]string, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	for _, required := range []string{update.MetadataFilename, update.ExpoConfigFilename} {
		if _, ok := files[required]; !ok {
			return nil, fmt.Errorf("%w: %s", errMissingFile, required)
		}
	}

	var metadata update.BundleMetadata
	if err := json.Unmarshal(files[update.MetadataFilename], &metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", update.ErrMalformedMetadata, err)
	}

	if !json.Valid(files[update.ExpoConfigFilename]) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", update.ErrMalformedMetadata, update.ExpoConfigFilename)
	}

	platforms := target.Platforms
	if len(platforms) == 0 {
		platforms = slices.Sorted(maps.Keys(metadata.FileMetadata))
	}

	if len(platforms) == 0 {
		return nil, errNoPlatforms
	}

	for _, platform := range platforms {
		if err := checkPlatformFiles(metadata, platform, files); err != nil {
			return nil, err
		}
	}

	epoch := strconv.FormatInt(p.now().Unix(), 10)
	bundlePaths := make([]string, 0, len(platforms))

	for _, platform := range platforms {
		bundlePath, err := p.publishPlatform(ctx, target, platform, epoch, files)
		if err != nil {
			return bundlePaths, err
		}

		bundlePaths = append(bundlePaths, bundlePath)
	}

	return bundlePaths, nil
}

// PublishRollback writes a rollback marker as a new bundle for every target platform.
func (p *Publisher) PublishRollback(ctx context.Context, target Target) ([]string, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	if len(target.Platforms) == 0 {
		return nil, errNoPlatforms
	}

	epoch := strconv.FormatInt(p.now().Unix(), 10)
	bundlePaths := make([]string, 0, len(target.Platforms))

	for _, platform := range target.Platforms {
		bundlePath, err := p.newBundlePath(ctx, target, platform, epoch)
		if err != nil {
			return bundlePaths, err
		}

		marker := update.ObjectKey(bundlePath, update.RollbackMarkerFilename)
		if err = p.repo.Put(ctx, marker, nil); err != nil {
			return bundlePaths, fmt.Errorf("write rollback marker: %w", err)
		}

		logger.InfoKV(ctx, "Rollback published", "bundle", bundlePath)

		bundlePaths = append(bundlePaths, bundlePath)
	}

	return bundlePaths, nil
}

func (p *Publisher) publishPlatform(
	ctx context.Context,
	target Target,
	platform update.Platform,
	epoch string,
	files map[string][]byte,
) (string, error) {
	bundlePath, err := p.newBundlePath(ctx, target, platform, epoch)
	if err != nil {
		return "", err
	}

	var total uint64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)

	for relative, data := range files {
		if relative == update.MetadataFilename {
			continue
		}

		total += uint64(len(data))

		group.Go(func() error {
			if putErr := p.repo.Put(groupCtx, update.ObjectKey(bundlePath, relative), data); putErr != nil {
				return fmt.Errorf("upload %s: %w", relative, putErr)
			}

			return nil
		})
	}

	if err = group.Wait(); err != nil {
		return "", err
	}

	metadata := files[update.MetadataFilename]
	if err = p.repo.Put(ctx, update.ObjectKey(bundlePath, update.MetadataFilename), metadata); err != nil {
		return "", fmt.Errorf("upload %s: %w", update.MetadataFilename, err)
	}

	total += uint64(len(metadata))

	logger.InfoKV(ctx, "Bundle published",
		"bundle", bundlePath,
		"files", len(files),
		"size", humanize.Bytes(total),
	)

	return bundlePath, nil
}

// newBundlePath returns the epoch folder for platform, refusing to overwrite an existing bundle.
func (p *Publisher) newBundlePath(
	ctx context.Context,
	target Target,
	platform update.Platform,
	epoch string,
) (string, error) {
	key := update.BundleKey{
		Project:        target.Project,
		Channel:        target.Channel,
		Platform:       platform,
		RuntimeVersion: target.RuntimeVersion,
	}

	bundlePath := key.Prefix() + epoch

	existing, err := p.repo.ListObjects(ctx, bundlePath)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", bundlePath, err)
	}

	folders, err := p.repo.ListFolders(ctx, bundlePath)
	if err != nil {
		return "", fmt.Errorf("inspect %s: %w", bundlePath, err)
	}

	if len(existing) > 0 || len(folders) > 0 {
		return "", fmt.Errorf("%w: %s", errBundleExists, bundlePath)
	}

	return bundlePath, nil
}

// checkPlatformFiles ensures every file metadata.json lists for platform is present.
func checkPlatformFiles(metadata update.BundleMetadata, platform update.Platform, files map[string][]byte) error {
	if !platform.Valid() {
		return fmt.Errorf("%w: unsupported platform %q", errInvalidTarget, platform)
	}

	platformMetadata, ok := metadata.FileMetadata[platform]
	if !ok {
		return fmt.Errorf("%w: %s", update.ErrPlatformNotInBundle, platform)
	}

	required := make([]string, 0, len(platformMetadata.Assets)+1)
	required = append(required, platformMetadata.Bundle)

	for _, asset := range platformMetadata.Assets {
		required = append(required, asset.Path)
	}

	for _, relative := range required {
		if _, ok = files[update.NormalizeAssetPath(relative)]; !ok {
			return fmt.Errorf("%w: %s (%s)", errMissingFile, relative, platform)
		}
	}

	return nil
}

func validateTarget(target Target) error {
	for name, value := range map[string]string{
		"project":         target.Project,
		"runtime version": target.RuntimeVersion,
	} {
		if value == "" || value == "." || value == ".." || containsSlash(value) {
			return fmt.Errorf("%w: %s %q", errInvalidTarget, name, value)
		}
	}

	if !target.Channel.Valid() {
		return fmt.Errorf("%w: channel %q", errInvalidTarget, target.Channel)
	}

	for _, platform := range target.Platforms {
		if !platform.Valid() {
			return fmt.Errorf("%w: platform %q", errInvalidTarget, platform)
		}
	}

	return nil
}

func containsSlash(value string) bool {
	for _, r := range value {
		if r == '/' || r == '\\' {
			return true
		}
	}

	return false
}

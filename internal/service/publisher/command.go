package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/api/http/updates"
	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/service/common"
)

// Options contains inputs for the publisher entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Project is the application identifier clients send as the id parameter.
	Project string
	// Channel is the release track to publish to.
	Channel string
	// Platforms limits publishing; empty publishes every platform of the bundle.
	Platforms []string
	// RuntimeVersion is the native runtime the bundle targets.
	RuntimeVersion string
	// Source is an exported dist directory or a .tar.gz archive of it.
	Source string
	// ExpoConfigPath replaces or supplies expoConfig.json.
	ExpoConfigPath string
	// Rollback publishes a rollback marker instead of a bundle.
	Rollback bool
}

// Run executes the publishing workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "updates-publisher")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Detect current system actor for audit logging.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	ctx = logger.WithKV(ctx, "actor", actor.String())

	repo, err := common.OpenRepository(ctx, settings.Storage)
	if err != nil {
		return err
	}

	target := Target{
		Project:        opts.Project,
		Channel:        update.Channel(opts.Channel),
		RuntimeVersion: opts.RuntimeVersion,
		Platforms:      make([]update.Platform, 0, len(opts.Platforms)),
	}

	for _, platform := range opts.Platforms {
		target.Platforms = append(target.Platforms, update.Platform(strings.ToLower(strings.TrimSpace(platform))))
	}

	pub := NewPublisher(repo)

	var bundlePaths []string

	if opts.Rollback {
		bundlePaths, err = pub.PublishRollback(ctx, target)
	} else {
		var files map[string][]byte

		files, err = loadFiles(opts)
		if err != nil {
			return err
		}

		bundlePaths, err = pub.Publish(ctx, target, files)
	}

	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	printNextSteps(ctx, settings.PublicURL, target, bundlePaths)

	return nil
}

// loadFiles reads the bundle source and applies the expoConfig.json override.
func loadFiles(opts *Options) (map[string][]byte, error) {
	if opts.Source == "" {
		return nil, fmt.Errorf("%w: no update source provided", errInvalidTarget)
	}

	files, err := LoadSource(opts.Source)
	if err != nil {
		return nil, err
	}

	if opts.ExpoConfigPath != "" {
		expoConfig, readErr := os.ReadFile(filepath.Clean(opts.ExpoConfigPath))
		if readErr != nil {
			return nil, fmt.Errorf("read expo config: %w", readErr)
		}

		files[update.ExpoConfigFilename] = expoConfig
	}

	return files, nil
}

// printNextSteps logs the manifest URL clients of the published lineage poll.
func printNextSteps(ctx context.Context, publicURL string, target Target, bundlePaths []string) {
	var builder strings.Builder

	builder.WriteString("Published bundles:\n")
	builder.WriteString(strings.Join(bundlePaths, ",\n"))
	builder.WriteString("\n\nConfigure expo-updates with the URL:\n")
	builder.WriteString(publicURL)
	builder.WriteString(updates.ManifestPath)
	builder.WriteString("?")
	builder.WriteString(updates.QueryProject)
	builder.WriteString("=")
	builder.WriteString(target.Project)
	builder.WriteString("&")
	builder.WriteString(updates.QueryChannel)
	builder.WriteString("=")
	builder.WriteString(string(target.Channel))
	builder.WriteString("\nand runtime version ")
	builder.WriteString(target.RuntimeVersion)

	logger.Info(ctx, builder.String())
}

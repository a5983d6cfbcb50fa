package checker

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/expo-updates-server/internal/api/grpc/health"
	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/logger"
	"github.com/oshokin/expo-updates-server/internal/service/common"
	"github.com/oshokin/expo-updates-server/internal/signing"
)

// Options controls a single update check.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerURL overrides the public URL from the config.
	ServerURL string
	// Project, Channel, Platform and RuntimeVersion select the bundle lineage.
	Project        string
	Channel        string
	Platform       string
	RuntimeVersion string
	// ProtocolVersion is sent as expo-protocol-version.
	ProtocolVersion int
	// CurrentUpdateID is sent as expo-current-update-id.
	CurrentUpdateID string
	// EmbeddedUpdateID is sent as expo-embedded-update-id.
	EmbeddedUpdateID string
	// PublicKeyPath requests and verifies a signature with this PEM key or certificate.
	PublicKeyPath string
	// VerifyAssets downloads every asset and checks its hash.
	VerifyAssets bool
	// HealthAddress also queries the gRPC health service at this address.
	HealthAddress string
}

// Run executes one update check and logs the result.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "updates-checker")

	// Load settings from configuration file.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line argument overrides config.
	serverURL := settings.PublicURL
	if opts.ServerURL != "" {
		serverURL = opts.ServerURL
	}

	client, err := common.NewClient(serverURL, common.WithCallTimeout(settings.Timeout))
	if err != nil {
		return err
	}

	checkOpts := CheckOptions{VerifyAssets: opts.VerifyAssets}

	if opts.PublicKeyPath != "" {
		verifier, loadErr := signing.LoadVerifier(opts.PublicKeyPath)
		if loadErr != nil {
			return fmt.Errorf("load public key: %w", loadErr)
		}

		checkOpts.Verifier = verifier
	}

	req := &update.Request{
		BundleKey: update.BundleKey{
			Project:        opts.Project,
			Channel:        update.Channel(opts.Channel),
			Platform:       update.Platform(strings.ToLower(opts.Platform)),
			RuntimeVersion: opts.RuntimeVersion,
		},
		ProtocolVersion:  update.ProtocolVersion(opts.ProtocolVersion),
		CurrentUpdateID:  opts.CurrentUpdateID,
		EmbeddedUpdateID: opts.EmbeddedUpdateID,
	}

	logger.InfoKV(ctx, "Checking for update", "server_url", serverURL, "bundle", req.Prefix())

	report, err := Check(ctx, client, req, checkOpts)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	logReport(ctx, report)

	if opts.HealthAddress == "" {
		return nil
	}

	// Query the health service after the check so its result reflects the same moment.
	status, err := common.CheckHealth(ctx, opts.HealthAddress, health.ServiceName, settings.Timeout)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Health status", "health_address", opts.HealthAddress, "status", status.String())

	return nil
}

// logReport writes a human-readable summary of the check.
func logReport(ctx context.Context, report *Report) {
	kvs := []any{"protocol_version", report.ProtocolVersion}

	if report.SignatureKeyID != "" {
		kvs = append(kvs, "signed_by", report.SignatureKeyID)
	}

	switch {
	case report.Manifest != nil:
		kvs = append(kvs,
			"update_id", report.Manifest.ID,
			"created_at", report.Manifest.CreatedAt,
			"assets", len(report.Manifest.AllAssets()),
		)

		if report.AssetsVerified > 0 {
			kvs = append(kvs, "verified_size", humanize.Bytes(report.AssetBytes))
		}

		logger.InfoKV(ctx, "Update available", kvs...)
	case report.Directive != nil:
		kvs = append(kvs, "directive", string(report.Directive.Type))

		if report.Directive.Parameters != nil {
			kvs = append(kvs, "commit_time", report.Directive.Parameters.CommitTime)
		}

		logger.InfoKV(ctx, "Directive received", kvs...)
	}
}

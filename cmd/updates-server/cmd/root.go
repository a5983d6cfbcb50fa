package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/expo-updates-server/internal/version"
)

var (
	// configPath to the configuration YAML file, shared by every subcommand.
	configPath string

	// rootCmd groups the server, publisher and checker subcommands.
	rootCmd = &cobra.Command{
		Use:   "updates-server",
		Short: "Serve, publish and check Expo over-the-air updates.",
		Long: `A self-hosted server for the Expo Updates protocol.

Bundles live in a content store (a local folder or an S3 bucket) under
{project}/{channel}/{platform}/{runtime-version}/{epoch}/. The newest epoch
folder is served to clients as a manifest, or as a rollBackToEmbedded
directive when it holds a rollback marker.

Settings are read from the configuration file and UPDATES_* environment variables.`,
		SilenceUsage: true,
	}
)

// Execute runs the updates-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on SIGTERM or SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Config flag defaults to empty so a missing default file is not an error.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to configuration file (default updates-server.yaml)")
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/expo-updates-server/internal/service/checker"
)

var (
	// checkOptions collects the check flags.
	checkOptions checker.Options

	// checkCmd performs one update check against a running server.
	checkCmd = &cobra.Command{
		Use:   "check [server-url]",
		Short: "Check a running server for an update.",
		Long: `Requests a manifest the way an expo-updates client does and prints the answer.

With --public-key, a signature is requested and verified. With --verify-assets,
every asset is downloaded and its SHA-256 compared with the manifest.
Server URL can be provided as argument to override the public URL from config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			if len(args) > 0 {
				checkOptions.ServerURL = args[0]
			}

			checkOptions.ConfigPath = configPath

			return checker.Run(ctx, &checkOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := checkCmd.Flags()
	flags.StringVar(&checkOptions.Project, "project", "", "project identifier sent as id")
	flags.StringVar(&checkOptions.Channel, "channel", "production", "release channel")
	flags.StringVar(&checkOptions.Platform, "platform", "ios", "client platform: ios or android")
	flags.StringVar(&checkOptions.RuntimeVersion, "runtime-version", "", "client runtime version")
	flags.IntVar(&checkOptions.ProtocolVersion, "protocol-version", 1, "expo-protocol-version to send")
	flags.StringVar(&checkOptions.CurrentUpdateID, "current-update-id", "", "expo-current-update-id to send")
	flags.StringVar(&checkOptions.EmbeddedUpdateID, "embedded-update-id", "", "expo-embedded-update-id to send")
	flags.StringVar(&checkOptions.PublicKeyPath, "public-key", "", "PEM public key or certificate to verify signatures")
	flags.BoolVar(&checkOptions.VerifyAssets, "verify-assets", false, "download assets and verify their hashes")
	flags.StringVar(&checkOptions.HealthAddress, "health-address", "", "also query the gRPC health service")

	_ = checkCmd.MarkFlagRequired("project")
	_ = checkCmd.MarkFlagRequired("runtime-version")

	rootCmd.AddCommand(checkCmd)
}

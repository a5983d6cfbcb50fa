package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/expo-updates-server/internal/service/publisher"
)

var (
	// publishOptions collects the publish flags.
	publishOptions publisher.Options

	// publishCmd uploads an exported bundle or a rollback marker.
	publishCmd = &cobra.Command{
		Use:   "publish [dist-directory | archive.tar.gz]",
		Short: "Publish an exported update bundle.",
		Long: `Uploads the output of "npx expo export" to the content store as a new bundle.

The source is a dist directory or a .tar.gz archive of it, and must contain
metadata.json and expoConfig.json (use --expo-config to supply the latter).
Every platform listed in metadata.json is published unless --platform is given.
With --rollback, a rollback marker is published instead and --platform is required.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			if len(args) > 0 {
				publishOptions.Source = args[0]
			}

			publishOptions.ConfigPath = configPath

			return publisher.Run(ctx, &publishOptions)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := publishCmd.Flags()
	flags.StringVar(&publishOptions.Project, "project", "", "project identifier clients send as id")
	flags.StringVar(&publishOptions.Channel, "channel", "production", "release channel: staging or production")
	flags.StringVar(&publishOptions.RuntimeVersion, "runtime-version", "", "runtime version the bundle targets")
	flags.StringSliceVar(&publishOptions.Platforms, "platform", nil, "platforms to publish: ios, android")
	flags.StringVar(&publishOptions.ExpoConfigPath, "expo-config", "", "path to expoConfig.json")
	flags.BoolVar(&publishOptions.Rollback, "rollback", false, "publish a rollback marker instead of a bundle")

	_ = publishCmd.MarkFlagRequired("project")
	_ = publishCmd.MarkFlagRequired("runtime-version")

	rootCmd.AddCommand(publishCmd)
}

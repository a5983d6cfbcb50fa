package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/expo-updates-server/internal/service/server"
)

var (
	// healthAddress overrides the gRPC health listen address.
	healthAddress string

	// serveCmd runs the HTTP update server.
	serveCmd = &cobra.Command{
		Use:   "serve [listen-address]",
		Short: "Run the update server.",
		Long: `Starts the HTTP server answering GET /api/manifest and GET /api/assets.

Prometheus metrics are exposed on /metrics. When a health address is set, a gRPC
health service reports whether the content store is reachable.
Listen address can be provided as argument to override config (e.g., :3000).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signalContext()
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return server.Run(ctx, &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				HealthAddress: healthAddress,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	serveCmd.Flags().StringVar(&healthAddress, "health-address", "", "gRPC health listen address (e.g., :3001)")

	rootCmd.AddCommand(serveCmd)
}

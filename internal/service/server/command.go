package server

import (
	"context"
	"fmt"
	"net"

	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/logger"
)

// Options controls the updates server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the HTTP listen address from the config.
	ListenAddress string
	// HealthAddress overrides the gRPC health listen address from the config.
	HealthAddress string
}

// Run starts the HTTP and health servers and blocks until context is canceled or a server fails.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "updates-server")

	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Command line arguments override config values.
	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.HealthAddress != "" {
		settings.HealthAddress = opts.HealthAddress
	}

	if err = config.Validate(settings); err != nil {
		return err
	}

	if err = logger.Configure(settings.LogLevel, settings.LogFormat); err != nil {
		return err
	}

	defer logger.Sync()

	app, err := newApplication(ctx, settings)
	if err != nil {
		return fmt.Errorf("initialise server: %w", err)
	}

	defer app.close(ctx)

	// Setup TCP listeners before serving so bind errors surface immediately.
	lc := net.ListenConfig{}

	httpListener, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	var healthListener net.Listener

	if settings.HealthAddress != "" {
		healthListener, err = lc.Listen(ctx, "tcp", settings.HealthAddress)
		if err != nil {
			_ = httpListener.Close()

			return fmt.Errorf("listen on %s: %w", settings.HealthAddress, err)
		}
	}

	return app.serve(ctx, httpListener, healthListener)
}

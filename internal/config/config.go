package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/expo-updates-server/internal/logger"
)

// Config holds the settings shared by the server, publisher and checker.
type Config struct {
	// ListenAddress is the HTTP address serving manifests and assets.
	ListenAddress string `yaml:"listen_addr" mapstructure:"listen_addr"`
	// HealthAddress is the gRPC health endpoint address; empty disables it.
	HealthAddress string `yaml:"health_addr" mapstructure:"health_addr"`
	// PublicURL is the externally reachable base URL used to build asset URLs.
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
	// LogLevel is the minimum level of emitted log entries.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// LogFormat selects console or JSON log output.
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	// Timeout bounds a single storage call and the checker's HTTP round trip.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Storage selects and configures the content store backend.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	// Signing configures manifest and directive code signing.
	Signing SigningConfig `yaml:"signing" mapstructure:"signing"`
	// Cache configures the optional digest cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
	// RateLimit throttles the manifest endpoint.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	// AssetRequestHeaders are attached to every asset in the extensions part.
	AssetRequestHeaders map[string]string `yaml:"asset_request_headers,omitempty" mapstructure:"asset_request_headers"`
}

// StorageConfig describes where update bundles live.
type StorageConfig struct {
	// Type is either StorageTypeFS or StorageTypeS3.
	Type string `yaml:"type" mapstructure:"type"`
	// Root is the local directory holding bundles for the fs backend.
	Root string `yaml:"root,omitempty" mapstructure:"root"`
	// Bucket is the S3 bucket holding bundles.
	Bucket string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	// Region is the S3 region.
	Region string `yaml:"region,omitempty" mapstructure:"region"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores (path-style addressing).
	Endpoint string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	// AccessKey and SecretKey are static credentials; empty uses the default AWS chain.
	AccessKey string `yaml:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key,omitempty" mapstructure:"secret_key"`
}

// SigningConfig points at the RSA private key used for expo-signature headers.
type SigningConfig struct {
	// PrivateKeyPath is a PEM file; empty disables signing.
	PrivateKeyPath string `yaml:"private_key_path,omitempty" mapstructure:"private_key_path"`
	// KeyID is reported in the keyid signature parameter.
	KeyID string `yaml:"key_id,omitempty" mapstructure:"key_id"`
}

// CacheConfig configures the Redis digest cache.
type CacheConfig struct {
	// RedisAddress enables the cache when set.
	RedisAddress string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	// TTL is how long a digest stays cached.
	TTL time.Duration `yaml:"ttl,omitempty" mapstructure:"ttl"`
}

// RateLimitConfig is a token bucket for the manifest endpoint; zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps,omitempty" mapstructure:"rps"`
	Burst int     `yaml:"burst,omitempty" mapstructure:"burst"`
}

const (
	// DefaultConfigFilename is the default filename for server settings.
	DefaultConfigFilename = "updates-server.yaml"

	// DefaultListenAddress is where the HTTP API listens when not configured.
	DefaultListenAddress = ":3000"

	// DefaultPublicURL is used to build asset URLs when not configured.
	DefaultPublicURL = "http://localhost:3000"

	// DefaultStorageRoot is the fs backend root when not configured.
	DefaultStorageRoot = "updates"

	// DefaultKeyID is the keyid reported alongside signatures.
	DefaultKeyID = "main"

	// DefaultTimeout is the default duration for storage and network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultCacheTTL is how long digests stay in Redis.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// StorageTypeFS stores bundles on the local filesystem.
	StorageTypeFS = "fs"
	// StorageTypeS3 stores bundles in an S3-compatible bucket.
	StorageTypeS3 = "s3"

	// envPrefix namespaces environment overrides, e.g. UPDATES_STORAGE_BUCKET.
	envPrefix = "UPDATES"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownStorageType is returned for storage types other than fs and s3.
	errUnknownStorageType = errors.New("unknown storage type")
	// errBucketRequired is returned when the s3 backend has no bucket.
	errBucketRequired = errors.New("storage bucket must be provided for s3")
	// errInvalidRateLimit is returned for negative rate limit values.
	errInvalidRateLimit = errors.New("rate limit must not be negative")
)

// Load reads configuration from the provided path, applies UPDATES_* environment
// overrides and validates the result. A missing file at the default path is not
// an error: defaults and environment variables are used instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	v := newViper()
	v.SetConfigFile(filepath.Clean(path))

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold storage credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting
// and fills defaults for everything optional.
//
//nolint:cyclop // Flat list of independent checks.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.HealthAddress); err != nil {
			return fmt.Errorf("invalid health address: %w", err)
		}
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = DefaultPublicURL
	}

	if _, err := url.ParseRequestURI(cfg.PublicURL); err != nil {
		return fmt.Errorf("invalid public URL: %w", err)
	}

	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = logger.FormatJSON
	}

	// Set default timeout if not specified.
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}

	if cfg.Signing.KeyID == "" {
		cfg.Signing.KeyID = DefaultKeyID
	}

	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}

	if cfg.RateLimit.RPS < 0 || cfg.RateLimit.Burst < 0 {
		return errInvalidRateLimit
	}

	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RPS) + 1
	}

	return nil
}

// validateStorage checks the backend-specific fields.
func validateStorage(storage *StorageConfig) error {
	if storage.Type == "" {
		storage.Type = StorageTypeFS
	}

	switch storage.Type {
	case StorageTypeFS:
		if storage.Root == "" {
			storage.Root = DefaultStorageRoot
		}
	case StorageTypeS3:
		if storage.Bucket == "" {
			return errBucketRequired
		}

		if storage.Endpoint != "" {
			if _, err := url.ParseRequestURI(storage.Endpoint); err != nil {
				return fmt.Errorf("invalid storage endpoint: %w", err)
			}
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStorageType, storage.Type)
	}

	return nil
}

// newViper returns a YAML reader with environment overrides for every known key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"listen_addr", "health_addr", "public_url", "log_level", "log_format", "timeout",
		"storage.type", "storage.root", "storage.bucket", "storage.region", "storage.endpoint",
		"storage.access_key", "storage.secret_key",
		"signing.private_key_path", "signing.key_id",
		"cache.redis_addr", "cache.ttl",
		"rate_limit.rps", "rate_limit.burst",
	} {
		v.SetDefault(key, nil)
	}

	return v
}

package update

import "errors"

// Request-level errors (BadRequest class).
var (
	// ErrInvalidRequest wraps every missing or malformed query parameter or header.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMissingSigningKey is returned when a signature is requested but no key is configured.
	ErrMissingSigningKey = errors.New("code signing requested but no key supplied when starting server")
)

// Protocol mismatch errors.
var (
	// ErrUnsupportedOnProtocolV0 is returned when a directive would be served to a v0 client.
	ErrUnsupportedOnProtocolV0 = errors.New("directives are not supported on protocol version 0")
	// ErrMissingEmbeddedUpdateID is returned when a rollback check lacks expo-embedded-update-id.
	ErrMissingEmbeddedUpdateID = errors.New("invalid expo-embedded-update-id request header specified")
)

// NotFound-class errors.
var (
	// ErrUnsupportedRuntimeVersion is returned when no bundle exists for the runtime version.
	ErrUnsupportedRuntimeVersion = errors.New("unsupported runtime version")
	// ErrBundleNotFound is returned when a bundle has no readable metadata.json.
	ErrBundleNotFound = errors.New("no update found")
	// ErrPlatformNotInBundle is returned when metadata.json lacks the requested platform.
	ErrPlatformNotInBundle = errors.New("platform not present in update")
	// ErrAssetNotFound is returned when an asset is not listed in the bundle or not stored.
	ErrAssetNotFound = errors.New("asset does not exist")
	// ErrRollbackNotFound is returned when the rollback marker disappears between classification and use.
	ErrRollbackNotFound = errors.New("no rollback found")
)

// Internal-class errors.
var (
	// ErrMissingExpoConfig is returned when the bundle has no expoConfig.json companion.
	ErrMissingExpoConfig = errors.New("no expo config json found")
	// ErrUnknownContentType is returned when a non-launch asset extension has no MIME type.
	ErrUnknownContentType = errors.New("unknown content type")
	// ErrMalformedMetadata is returned when a bundle document cannot be decoded.
	ErrMalformedMetadata = errors.New("malformed update metadata")
)

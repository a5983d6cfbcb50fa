package updates

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/service/manifest"
)

// Protocol request headers.
const (
	HeaderProtocolVersion  = "expo-protocol-version"
	HeaderPlatform         = "expo-platform"
	HeaderRuntimeVersion   = "expo-runtime-version"
	HeaderChannelName      = "expo-channel-name"
	HeaderCurrentUpdateID  = "expo-current-update-id"
	HeaderEmbeddedUpdateID = "expo-embedded-update-id"
	HeaderExpectSignature  = "expo-expect-signature"
)

// Manifest query parameters.
const (
	QueryProject        = "id"
	QueryChannel        = "channel"
	QueryPlatform       = "platform"
	QueryRuntimeVersion = "runtime-version"
)

// ParseManifestRequest extracts an update check from headers and query.
// Protocol headers take precedence over query parameters.
func ParseManifestRequest(r *http.Request) (*update.Request, error) {
	query := r.URL.Query()

	protocolVersion, err := parseProtocolVersion(r.Header)
	if err != nil {
		return nil, err
	}

	project := query.Get(QueryProject)
	if err = validateSegment(QueryProject, project); err != nil {
		return nil, err
	}

	channel := update.Channel(headerOrQuery(r, HeaderChannelName, QueryChannel))
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: unsupported channel %q, expected staging or production",
			update.ErrInvalidRequest, channel)
	}

	platform := update.Platform(headerOrQuery(r, HeaderPlatform, QueryPlatform))
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: unsupported platform %q, expected ios or android",
			update.ErrInvalidRequest, platform)
	}

	runtimeVersion := headerOrQuery(r, HeaderRuntimeVersion, QueryRuntimeVersion)
	if err = validateSegment(QueryRuntimeVersion, runtimeVersion); err != nil {
		return nil, err
	}

	return &update.Request{
		BundleKey: update.BundleKey{
			Project:        project,
			Channel:        channel,
			Platform:       platform,
			RuntimeVersion: runtimeVersion,
		},
		ProtocolVersion:  protocolVersion,
		CurrentUpdateID:  strings.TrimSpace(r.Header.Get(HeaderCurrentUpdateID)),
		EmbeddedUpdateID: strings.TrimSpace(r.Header.Get(HeaderEmbeddedUpdateID)),
		ExpectSignature:  r.Header.Get(HeaderExpectSignature) != "",
	}, nil
}

// AssetRequest identifies one asset URL produced by a manifest.
type AssetRequest struct {
	update.BundleKey

	// ObjectKey is the storage key of the asset.
	ObjectKey string
}

// ParseAssetRequest reads the query built by the manifest engine.
func ParseAssetRequest(r *http.Request) (*AssetRequest, error) {
	query := r.URL.Query()

	objectKey := query.Get(manifest.AssetQueryAsset)
	if objectKey == "" {
		return nil, fmt.Errorf("%w: no asset name provided", update.ErrInvalidRequest)
	}

	project := query.Get(manifest.AssetQueryProject)
	if err := validateSegment(manifest.AssetQueryProject, project); err != nil {
		return nil, err
	}

	channel := update.Channel(query.Get(manifest.AssetQueryChannel))
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: unsupported channel %q", update.ErrInvalidRequest, channel)
	}

	platform := update.Platform(query.Get(manifest.AssetQueryPlatform))
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: no platform provided, expected ios or android", update.ErrInvalidRequest)
	}

	runtimeVersion := query.Get(manifest.AssetQueryRuntimeVersion)
	if err := validateSegment(manifest.AssetQueryRuntimeVersion, runtimeVersion); err != nil {
		return nil, err
	}

	return &AssetRequest{
		BundleKey: update.BundleKey{
			Project:        project,
			Channel:        channel,
			Platform:       platform,
			RuntimeVersion: runtimeVersion,
		},
		ObjectKey: objectKey,
	}, nil
}

// parseProtocolVersion accepts a single 0 or 1; absence means 0.
func parseProtocolVersion(header http.Header) (update.ProtocolVersion, error) {
	values := header.Values(HeaderProtocolVersion)

	switch len(values) {
	case 0:
		return update.ProtocolV0, nil
	case 1:
	default:
		return 0, fmt.Errorf("%w: %s must have a single value", update.ErrInvalidRequest, HeaderProtocolVersion)
	}

	version, err := strconv.Atoi(strings.TrimSpace(values[0]))
	if err != nil || (version != int(update.ProtocolV0) && version != int(update.ProtocolV1)) {
		return 0, fmt.Errorf("%w: unsupported %s %q", update.ErrInvalidRequest, HeaderProtocolVersion, values[0])
	}

	return update.ProtocolVersion(version), nil
}

func headerOrQuery(r *http.Request, header, param string) string {
	if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
		return value
	}

	return strings.TrimSpace(r.URL.Query().Get(param))
}

// validateSegment ensures a value can be used as one storage path segment.
func validateSegment(name, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: no %s provided", update.ErrInvalidRequest, name)
	case value == "." || value == ".." || strings.ContainsAny(value, `/\`):
		return fmt.Errorf("%w: invalid %s %q", update.ErrInvalidRequest, name, value)
	default:
		return nil
	}
}

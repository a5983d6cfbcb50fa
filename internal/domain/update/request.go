package update

import "strings"

// Platform is the client operating system an update targets.
type Platform string

// Supported platforms.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// Channel is the release track a client follows.
type Channel string

// Supported channels.
const (
	ChannelStaging    Channel = "staging"
	ChannelProduction Channel = "production"
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	return c == ChannelStaging || c == ChannelProduction
}

// ProtocolVersion is the wire-format generation negotiated with the client.
type ProtocolVersion int

// Known protocol versions.
const (
	// ProtocolV0 serves manifests only.
	ProtocolV0 ProtocolVersion = 0
	// ProtocolV1 adds directives and no-update signaling.
	ProtocolV1 ProtocolVersion = 1
)

// SupportsDirectives reports whether directives may be served at this version.
func (v ProtocolVersion) SupportsDirectives() bool {
	return v >= ProtocolV1
}

// BundleKey identifies the lineage of bundles published for one runtime.
type BundleKey struct {
	// Project is the application identifier (the id query parameter).
	Project string
	// Channel is the release track.
	Channel Channel
	// Platform is the client OS.
	Platform Platform
	// RuntimeVersion is the native runtime compatibility version.
	RuntimeVersion string
}

// Prefix returns the storage prefix under which the epoch folders live,
// always terminated by a slash.
func (k BundleKey) Prefix() string {
	return strings.Join([]string{k.Project, string(k.Channel), string(k.Platform), k.RuntimeVersion}, "/") + "/"
}

// Request is one client update check after header and query negotiation.
type Request struct {
	BundleKey

	// ProtocolVersion is the negotiated expo-protocol-version.
	ProtocolVersion ProtocolVersion
	// CurrentUpdateID is the expo-current-update-id header, empty when absent.
	CurrentUpdateID string
	// EmbeddedUpdateID is the expo-embedded-update-id header, empty when absent.
	EmbeddedUpdateID string
	// ExpectSignature is set when the client sent expo-expect-signature.
	ExpectSignature bool
}

// SameUpdateID compares two update identifiers. UUIDs are case-insensitive.
func SameUpdateID(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

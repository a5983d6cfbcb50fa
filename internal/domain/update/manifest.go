package update

import (
	"encoding/json"
	"time"
)

// TimestampLayout renders ISO-8601 UTC timestamps with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Digests are the content-derived identifiers of an asset.
type Digests struct {
	// Hash is the SHA-256 digest, base64url without padding.
	Hash string `json:"hash"`
	// Key is the MD5 digest, lowercase hex.
	Key string `json:"key"`
}

// AssetMetadata describes one asset inside a manifest.
type AssetMetadata struct {
	Hash          string `json:"hash"`
	Key           string `json:"key"`
	FileExtension string `json:"fileExtension"`
	ContentType   string `json:"contentType"`
	URL           string `json:"url"`
}

// Manifest is the payload describing a normal update.
type Manifest struct {
	ID             string           `json:"id"`
	CreatedAt      string           `json:"createdAt"`
	RuntimeVersion string           `json:"runtimeVersion"`
	Assets         []*AssetMetadata `json:"assets"`
	LaunchAsset    *AssetMetadata   `json:"launchAsset"`
	Metadata       map[string]any   `json:"metadata"`
	Extra          ManifestExtra    `json:"extra"`
}

// ManifestExtra carries the exported app config for the client runtime.
type ManifestExtra struct {
	ExpoClient json.RawMessage `json:"expoClient"`
}

// AllAssets returns the regular assets followed by the launch asset.
func (m *Manifest) AllAssets() []*AssetMetadata {
	all := make([]*AssetMetadata, 0, len(m.Assets)+1)
	all = append(all, m.Assets...)

	if m.LaunchAsset != nil {
		all = append(all, m.LaunchAsset)
	}

	return all
}

// PartName is the multipart field carrying a manifest.
func (*Manifest) PartName() string {
	return "manifest"
}

// DirectiveType enumerates directive kinds.
type DirectiveType string

// Directive kinds.
const (
	DirectiveRollBackToEmbedded DirectiveType = "rollBackToEmbedded"
	DirectiveNoUpdateAvailable  DirectiveType = "noUpdateAvailable"
)

// Directive is a payload replacing a manifest.
type Directive struct {
	Type       DirectiveType        `json:"type"`
	Parameters *DirectiveParameters `json:"parameters,omitempty"`
}

// DirectiveParameters are the arguments of a rollBackToEmbedded directive.
type DirectiveParameters struct {
	CommitTime string `json:"commitTime"`
}

// PartName is the multipart field carrying a directive.
func (*Directive) PartName() string {
	return "directive"
}

// NewRollBackDirective instructs the client to return to its embedded update.
func NewRollBackDirective(commitTime time.Time) *Directive {
	return &Directive{
		Type: DirectiveRollBackToEmbedded,
		Parameters: &DirectiveParameters{
			CommitTime: FormatTimestamp(commitTime),
		},
	}
}

// Payload is either a *Manifest or a *Directive.
type Payload interface {
	PartName() string
}

// Outcome is the tagged result of resolving one update check.
// It is exactly one of *ManifestOutcome, *DirectiveOutcome or *NoUpdateAvailable.
type Outcome interface {
	outcome()
}

// ManifestOutcome carries a manifest for a normal update.
type ManifestOutcome struct {
	Manifest *Manifest
}

// DirectiveOutcome carries a rollback directive.
type DirectiveOutcome struct {
	Directive *Directive
}

// NoUpdateAvailable signals that the client already runs the current update.
type NoUpdateAvailable struct {
	// Reason explains which branch reached this state, for logging.
	Reason string
}

func (*ManifestOutcome) outcome()   {}
func (*DirectiveOutcome) outcome()  {}
func (*NoUpdateAvailable) outcome() {}

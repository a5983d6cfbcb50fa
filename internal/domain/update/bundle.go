package update

import "strings"

// Well-known object names inside a bundle folder.
const (
	// MetadataFilename is the bundler-produced metadata document.
	MetadataFilename = "metadata.json"
	// ExpoConfigFilename is the exported app config embedded into extra.expoClient.
	ExpoConfigFilename = "expoConfig.json"
	// RollbackMarkerFilename marks a bundle as a rollback instruction.
	RollbackMarkerFilename = "rollback"
)

// UpdateType classifies a resolved bundle.
type UpdateType int

// Update types.
const (
	// UpdateTypeNormal is a bundle carrying a manifest.
	UpdateTypeNormal UpdateType = iota + 1
	// UpdateTypeRollback is a bundle carrying a rollback marker.
	UpdateTypeRollback
)

// String implements fmt.Stringer for logging.
func (t UpdateType) String() string {
	switch t {
	case UpdateTypeNormal:
		return "normal"
	case UpdateTypeRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// BundleMetadata is the metadata.json document published with every bundle.
type BundleMetadata struct {
	Version      int                          `json:"version"`
	Bundler      string                       `json:"bundler"`
	FileMetadata map[Platform]PlatformMetadata `json:"fileMetadata"`
}

// PlatformMetadata lists the launch bundle and assets for one platform.
type PlatformMetadata struct {
	// Bundle is the bundle-relative path of the launch asset.
	Bundle string `json:"bundle"`
	// Assets are the bundle-relative non-launch assets.
	Assets []AssetDescriptor `json:"assets"`
}

// AssetDescriptor names one non-launch asset.
type AssetDescriptor struct {
	Path string `json:"path"`
	Ext  string `json:"ext"`
}

// Lookup finds relativePath among the platform files. It reports whether the
// path is the launch bundle and, for regular assets, returns the descriptor.
func (m PlatformMetadata) Lookup(relativePath string) (AssetDescriptor, bool, bool) {
	relativePath = NormalizeAssetPath(relativePath)

	if NormalizeAssetPath(m.Bundle) == relativePath {
		return AssetDescriptor{Path: m.Bundle}, true, true
	}

	for _, asset := range m.Assets {
		if NormalizeAssetPath(asset.Path) == relativePath {
			return asset, false, true
		}
	}

	return AssetDescriptor{}, false, false
}

// NormalizeAssetPath strips leading "./" and "/" from a bundle-relative path.
func NormalizeAssetPath(p string) string {
	p = strings.TrimPrefix(p, "./")

	return strings.TrimLeft(p, "/")
}

// ObjectKey joins a bundle path and a bundle-relative path into a storage key.
func ObjectKey(bundlePath, relativePath string) string {
	return strings.TrimRight(bundlePath, "/") + "/" + NormalizeAssetPath(relativePath)
}

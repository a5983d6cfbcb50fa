package manifest

import (
	"fmt"
	"mime"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// launchAssetContentType is served for the JavaScript entry point.
const launchAssetContentType = "application/javascript"

// launchAssetExtension is the fileExtension reported for the launch asset.
const launchAssetExtension = ".bundle"

// assetContentTypes covers asset kinds missing from Go's built-in MIME table.
//
//nolint:gochecknoglobals // Read-only lookup table.
var assetContentTypes = map[string]string{
	"aac":   "audio/aac",
	"bmp":   "image/bmp",
	"heic":  "image/heic",
	"ico":   "image/x-icon",
	"m4a":   "audio/mp4",
	"mp3":   "audio/mpeg",
	"mp4":   "video/mp4",
	"otf":   "font/otf",
	"ttf":   "font/ttf",
	"wav":   "audio/wav",
	"woff":  "font/woff",
	"woff2": "font/woff2",
}

// contentTypeForExtension maps an asset extension to its bare media type.
func contentTypeForExtension(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "", fmt.Errorf("%w: empty extension", update.ErrUnknownContentType)
	}

	if contentType, ok := assetContentTypes[ext]; ok {
		return contentType, nil
	}

	contentType := mime.TypeByExtension("." + ext)
	if contentType == "" {
		return "", fmt.Errorf("%w: .%s", update.ErrUnknownContentType, ext)
	}

	// Drop parameters such as charset, clients compare the bare media type.
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType, nil
	}

	return contentType, nil
}

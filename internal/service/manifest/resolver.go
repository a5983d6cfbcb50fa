package manifest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// ResolveLatestBundle returns the path of the bundle with the numerically
// largest epoch folder under the key's prefix.
func (e *Engine) ResolveLatestBundle(ctx context.Context, key update.BundleKey) (string, error) {
	prefix := key.Prefix()

	folders, err := e.repo.ListFolders(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list bundles under %s: %w", prefix, err)
	}

	latest, ok := latestEpoch(folders)
	if !ok {
		return "", fmt.Errorf("%w: %s", update.ErrUnsupportedRuntimeVersion, key.RuntimeVersion)
	}

	return prefix + latest, nil
}

// latestEpoch picks the folder whose last segment is the largest base-10
// integer. Segments that do not parse are ignored. Equal values ("010" and
// "10") are broken by the lexicographically greatest segment, so the choice
// does not depend on listing order.
func latestEpoch(folders []string) (string, bool) {
	var (
		best      string
		bestEpoch int64
		found     bool
	)

	for _, folder := range folders {
		segment := lastSegment(folder)
		if segment == "" {
			continue
		}

		epoch, err := strconv.ParseInt(segment, 10, 64)
		if err != nil {
			continue
		}

		if !found || epoch > bestEpoch || (epoch == bestEpoch && segment > best) {
			best, bestEpoch, found = segment, epoch, true
		}
	}

	return best, found
}

// lastSegment returns the final non-empty slash-separated segment.
func lastSegment(folder string) string {
	folder = strings.TrimRight(folder, "/")
	if i := strings.LastIndex(folder, "/"); i >= 0 {
		return folder[i+1:]
	}

	return folder
}

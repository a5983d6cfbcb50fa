package manifest

import (
	"context"
	"fmt"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// Classify reports whether the bundle is a rollback instruction or a normal update.
// A rollback marker object directly inside the bundle wins over metadata.json.
func (e *Engine) Classify(ctx context.Context, bundlePath string) (update.UpdateType, error) {
	objects, err := e.repo.ListObjects(ctx, bundlePath)
	if err != nil {
		return 0, fmt.Errorf("list bundle %s: %w", bundlePath, err)
	}

	marker := update.ObjectKey(bundlePath, update.RollbackMarkerFilename)
	for _, object := range objects {
		if object == marker {
			return update.UpdateTypeRollback, nil
		}
	}

	return update.UpdateTypeNormal, nil
}

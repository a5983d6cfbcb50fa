//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"

	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/repository/blob"
)

// OpenRepository builds the content store selected by the storage settings.
func OpenRepository(ctx context.Context, storage config.StorageConfig) (blob.Repository, error) {
	switch storage.Type {
	case config.StorageTypeFS, "":
		return blob.NewFileRepository(storage.Root), nil
	case config.StorageTypeS3:
		repo, err := blob.NewS3Repository(ctx, blob.S3Options{
			Bucket:    storage.Bucket,
			Region:    storage.Region,
			Endpoint:  storage.Endpoint,
			AccessKey: storage.AccessKey,
			SecretKey: storage.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 storage: %w", err)
		}

		return repo, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStorageType, storage.Type)
	}
}

package manifest

import (
	"crypto/md5" //nolint:gosec // MD5 is the protocol's content-addressing key, not a security primitive.
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
	sha256 "github.com/minio/sha256-simd"

	"github.com/oshokin/expo-updates-server/internal/domain/update"
)

// computeDigests hashes the exact bytes of one asset.
func computeDigests(data []byte) update.Digests {
	sum := sha256.Sum256(data)
	key := md5.Sum(data) //nolint:gosec // See import comment.

	return update.Digests{
		Hash: base64.RawURLEncoding.EncodeToString(sum[:]),
		Key:  hex.EncodeToString(key[:]),
	}
}

// manifestID derives the update id from the metadata document: the first
// 32 hex characters of its SHA-256 digest, dashed as 8-4-4-4-12.
func manifestID(metadata []byte) string {
	sum := sha256.Sum256(metadata)

	// A UUID renders its 16 bytes as exactly those 32 hex characters.
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// FromBytes only fails on a length other than 16.
		panic(err)
	}

	return id.String()
}

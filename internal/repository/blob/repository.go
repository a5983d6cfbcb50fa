package blob

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Repository lists and reads objects of the content store.
type Repository interface {
	// ListFolders returns the child folder prefixes directly under prefix,
	// each terminated by a slash. A missing prefix yields an empty list.
	ListFolders(ctx context.Context, prefix string) ([]string, error)
	// ListObjects returns the keys of objects directly under prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	// Head returns object metadata without the body.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Get returns the full object body.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores data under key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte) error
}

// ObjectInfo is the metadata of one stored object.
type ObjectInfo struct {
	// Key is the object key.
	Key string
	// Size is the body length in bytes.
	Size int64
	// LastModified is when the object was written.
	LastModified time.Time
	// URL locates the object inside its backend.
	URL string
}

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")
	// errInvalidKey is returned for empty keys or keys escaping the store.
	errInvalidKey = errors.New("invalid object key")
)

// normalizePrefix turns prefix into "" or a slash-terminated folder path.
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}

	return prefix + "/"
}

// normalizeKey trims surrounding slashes and rejects empty or relative segments.
func normalizeKey(key string) (string, error) {
	key = strings.Trim(key, "/")
	if key == "" {
		return "", errInvalidKey
	}

	for segment := range strings.SplitSeq(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", errInvalidKey
		}
	}

	return key, nil
}

// sortedKeys returns the set members in ascending order.
func sortedKeys(set map[string]struct{}) []string {
	result := make([]string, 0, len(set))
	for key := range set {
		result = append(result, key)
	}

	sort.Strings(result)

	return result
}

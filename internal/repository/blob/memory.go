package blob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryRepository keeps objects in process memory.
type MemoryRepository struct {
	// mu protects objects.
	mu sync.RWMutex
	// objects maps keys to stored bodies.
	objects map[string]memoryObject
	// now stamps objects written through Put.
	now func() time.Time
}

// memoryObject is one stored body with its write time.
type memoryObject struct {
	data         []byte
	lastModified time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// ListFolders returns the distinct child folders under prefix.
func (m *MemoryRepository) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	return m.list(ctx, prefix, true)
}

// ListObjects returns the keys stored directly under prefix.
func (m *MemoryRepository) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return m.list(ctx, prefix, false)
}

// Head returns the size and write time of key.
func (m *MemoryRepository) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	object, key, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(object.data)),
		LastModified: object.lastModified,
		URL:          "memory://" + key,
	}, nil
}

// Get returns a copy of the body stored under key.
func (m *MemoryRepository) Get(ctx context.Context, key string) ([]byte, error) {
	object, _, err := m.lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), object.data...), nil
}

// Put stores a copy of data under key stamped with the current time.
func (m *MemoryRepository) Put(ctx context.Context, key string, data []byte) error {
	return m.PutAt(ctx, key, data, m.now())
}

// PutAt stores a copy of data under key with an explicit modification time.
func (m *MemoryRepository) PutAt(ctx context.Context, key string, data []byte, lastModified time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized, err := normalizeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %q", err, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[normalized] = memoryObject{
		data:         append([]byte(nil), data...),
		lastModified: lastModified,
	}

	return nil
}

// lookup finds key under the read lock.
func (m *MemoryRepository) lookup(ctx context.Context, key string) (memoryObject, string, error) {
	if err := ctx.Err(); err != nil {
		return memoryObject{}, "", err
	}

	normalized, err := normalizeKey(key)
	if err != nil {
		return memoryObject{}, "", fmt.Errorf("%w: %q", err, key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	object, ok := m.objects[normalized]
	if !ok {
		return memoryObject{}, "", fmt.Errorf("%w: %s", ErrNotFound, normalized)
	}

	return object, normalized, nil
}

// list groups keys under prefix into direct objects or child folders.
func (m *MemoryRepository) list(ctx context.Context, prefix string, folders bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix = normalizePrefix(prefix)
	found := make(map[string]struct{})

	m.mu.RLock()
	defer m.mu.RUnlock()

	for key := range m.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		child, _, isNested := strings.Cut(rest, "/")

		switch {
		case folders && isNested:
			found[prefix+child+"/"] = struct{}{}
		case !folders && !isNested:
			found[key] = struct{}{}
		}
	}

	return sortedKeys(found), nil
}

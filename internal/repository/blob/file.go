package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileRepository serves objects from a directory tree on the local disk.
// Object keys map to file paths below root; LastModified is the file mtime.
type FileRepository struct {
	// root is the directory containing the project folders.
	root string
}

// dirPermissions is used for folders created by Put.
const dirPermissions = 0o755

// filePermissions is used for objects written by Put.
const filePermissions = 0o644

// NewFileRepository creates a repository rooted at the provided directory.
func NewFileRepository(root string) *FileRepository {
	absolute, err := filepath.Abs(root)
	if err != nil {
		absolute = filepath.Clean(root)
	}

	return &FileRepository{
		root: absolute,
	}
}

// ListFolders returns the sub-directories of prefix.
func (r *FileRepository) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	return r.list(ctx, prefix, true)
}

// ListObjects returns the regular files directly inside prefix.
func (r *FileRepository) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return r.list(ctx, prefix, false)
}

// Head stats the file behind key.
func (r *FileRepository) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, key, err := r.resolve(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		URL:          "file://" + filepath.ToSlash(path),
	}, nil
}

// Get reads the whole file behind key.
func (r *FileRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, key, err := r.resolve(key)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return contents, nil
}

// Put writes data to the file behind key, creating parent folders.
func (r *FileRepository) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, key, err := r.resolve(key)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("create folder for %s: %w", key, err)
	}

	if err = os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

// list reads one directory level and keeps either folders or files.
func (r *FileRepository) list(ctx context.Context, prefix string, folders bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix = normalizePrefix(prefix)

	dir := r.root
	if prefix != "" {
		var err error

		dir, _, err = r.resolve(prefix)
		if err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	result := make([]string, 0, len(entries))

	for _, entry := range entries {
		switch {
		case folders && entry.IsDir():
			result = append(result, prefix+entry.Name()+"/")
		case !folders && entry.Type().IsRegular():
			result = append(result, prefix+entry.Name())
		}
	}

	return result, nil
}

// resolve validates key and maps it to a path inside root.
func (r *FileRepository) resolve(key string) (string, string, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", err, key)
	}

	path := filepath.Join(r.root, filepath.FromSlash(normalized))
	if !strings.HasPrefix(path, r.root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", errInvalidKey, key)
	}

	return path, normalized, nil
}

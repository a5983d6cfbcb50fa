package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFileRepository_HeadUsesModTime verifies LastModified mirrors the file mtime.
func TestFileRepository_HeadUsesModTime(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	repo := NewFileRepository(root)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "demo/production/ios/1/17/rollback", nil))

	stamp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(root, "demo", "production", "ios", "1", "17", "rollback")
	require.NoError(t, os.Chtimes(path, stamp, stamp))

	info, err := repo.Head(ctx, "demo/production/ios/1/17/rollback")
	require.NoError(t, err)
	require.True(t, stamp.Equal(info.LastModified))
	require.Equal(t, "file://"+filepath.ToSlash(path), info.URL)
}

// TestFileRepository_HeadDirectory reports folders as missing objects.
func TestFileRepository_HeadDirectory(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(t.TempDir())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "demo/file", []byte("x")))

	_, err := repo.Head(ctx, "demo")
	require.ErrorIs(t, err, ErrNotFound)
}

package publisher

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// distPrefix is stripped from archive entries produced by tar -czf updates.tar.gz dist.
const distPrefix = "dist/"

// errUnsafePath is returned for archive entries escaping the bundle.
var errUnsafePath = errors.New("unsafe path in update source")

// LoadSource reads an exported bundle from a directory or a .tar.gz archive.
// Keys of the result are slash-separated bundle-relative paths.
func LoadSource(source string) (map[string][]byte, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("stat update source: %w", err)
	}

	if info.IsDir() {
		return loadDirectory(source)
	}

	return loadArchive(source)
}

func loadDirectory(root string) (map[string][]byte, error) {
	files := make(map[string][]byte)

	err := filepath.WalkDir(root, func(name string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !entry.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(root, name)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(filepath.Clean(name))
		if err != nil {
			return fmt.Errorf("read %s: %w", relative, err)
		}

		files[filepath.ToSlash(relative)] = data

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk update directory: %w", err)
	}

	return files, nil
}

func loadArchive(name string) (map[string][]byte, error) {
	file, err := os.Open(filepath.Clean(name))
	if err != nil {
		return nil, fmt.Errorf("open update archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	files := make(map[string][]byte)
	reader := tar.NewReader(gz)

	for {
		header, nextErr := reader.Next()
		if errors.Is(nextErr, io.EOF) {
			return files, nil
		}

		if nextErr != nil {
			return nil, fmt.Errorf("read update archive: %w", nextErr)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		relative, pathErr := archivePath(header.Name)
		if pathErr != nil {
			return nil, pathErr
		}

		data, readErr := io.ReadAll(reader) //nolint:gosec // Archives are produced by the operator running the command.
		if readErr != nil {
			return nil, fmt.Errorf("read %s: %w", header.Name, readErr)
		}

		files[relative] = data
	}
}

// archivePath normalises an archive entry name and strips a leading dist/ folder.
func archivePath(name string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "./"))
	if cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", errUnsafePath, name)
	}

	return strings.TrimPrefix(cleaned, distPrefix), nil
}

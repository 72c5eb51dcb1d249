package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileStore keeps one file per key in a single directory.
type FileStore struct {
	dir string
}

// NewFileStore opens a directory-backed store, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key), nil
}

// Has implements Store.
func (f *FileStore) Has(_ context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	countOp(backendFile, "has")

	info, err := os.Stat(p)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		countErr(backendFile, "has")
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	countOp(backendFile, "get")

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		countErr(backendFile, "get")
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put implements Store. The value is written to a temporary file and renamed
// into place, so readers never observe a partial entry.
func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	countOp(backendFile, "put")

	tmp, err := os.CreateTemp(f.dir, "."+key+".tmp-*")
	if err != nil {
		countErr(backendFile, "put")
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		countErr(backendFile, "put")
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		countErr(backendFile, "put")
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		countErr(backendFile, "put")
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		countErr(backendFile, "put")
		return fmt.Errorf("rename %s: %w", key, err)
	}

	CacheWrittenBytes.WithLabelValues(backendFile).Add(float64(len(value)))
	return nil
}

// Keys implements Store. Hidden files (locks, temp files) are not keys.
func (f *FileStore) Keys(_ context.Context) ([]string, error) {
	countOp(backendFile, "keys")

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		countErr(backendFile, "keys")
		return nil, fmt.Errorf("read cache directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !ValidKey(e.Name()) {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

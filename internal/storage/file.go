package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps objects as files under a root directory.
// It stands in for S3 in local runs.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Put writes data to the file for key, creating the root if needed.
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path, err := s.path(key)
	if err != nil {
		return &StorageError{Op: "put", Location: s.Location(key), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "put", Location: s.Location(key), Err: err}
	}

	// Write then rename; readers never see a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &StorageError{Op: "put", Location: s.Location(key), Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "put", Location: s.Location(key), Err: err}
	}
	return nil
}

// Get reads the file for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, &StorageError{Op: "get", Location: s.Location(key), Err: err}
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Location: s.Location(key), Err: err}
	}
	return data, nil
}

// Location returns the file:// URI of key.
func (s *FileStore) Location(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.root, key))
}

// path maps key to a file path, rejecting keys that escape the root.
func (s *FileStore) path(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) || strings.Contains(filepath.ToSlash(key), "../") || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

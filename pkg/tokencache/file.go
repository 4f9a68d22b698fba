package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir is the directory the file backend uses when none is given.
const DefaultDir = "tokens_cache"

// FileBackend keeps one <key>.json file per entry in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend returns a FileBackend rooted at dir. The directory is
// created on first write.
func NewFileBackend(dir string) *FileBackend {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileBackend{dir: dir}
}

// Dir returns the backing directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

// Get reads the entry for key.
func (b *FileBackend) Get(_ context.Context, key string) (Entry, error) {
	raw, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return entry, nil
}

// Put writes the entry for key via a temp file and rename, so readers never
// observe a partial file.
func (b *FileBackend) Put(_ context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	return writeFile(b.path(key), raw, 0o600)
}

func writeFile(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	// no-op once the rename succeeded
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return os.Rename(tmp, path)
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FSStore implements Backend on the local filesystem.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem-based snapshot store rooted at root.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FSStore{root: absRoot}, nil
}

func (s *FSStore) Provider() string { return "filesystem" }

func (s *FSStore) PutSnapshot(_ context.Context, accountID, tunnelID uuid.UUID, raw []byte) (key, sha256hex string, size int64, err error) {
	blob, meta, err := PrepareBlob(raw, accountID, tunnelID, time.Now())
	if err != nil {
		return "", "", 0, err
	}

	fullPath := filepath.Join(s.root, meta.Key)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: temp file then rename on the same partition.
	tmpFile, err := os.CreateTemp(dir, "muraqib-*.tmp")
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return "", "", 0, fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmpFile.Write(blob); err != nil {
		tmpFile.Close()
		return "", "", 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", "", 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", "", 0, fmt.Errorf("storage: rename: %w", err)
	}

	return meta.Key, meta.SHA256, meta.Size, nil
}

func (s *FSStore) GetSnapshot(_ context.Context, key string) ([]byte, error) {
	fullPath := filepath.Join(s.root, key)
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: key not found: %s", key)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	defer f.Close()

	return DecompressBlob(f)
}

func (s *FSStore) DeleteObject(_ context.Context, key string) error {
	fullPath := filepath.Join(s.root, key)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // idempotent delete
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

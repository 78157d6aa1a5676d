package storage

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the snapshot object store. Published ingress configurations
// are full-replace pushes, so the previous remote state is snapshotted here
// before every publish.
type Backend interface {
	// PutSnapshot stores a compressed snapshot of a tunnel's remote
	// configuration and returns its key and content hash.
	PutSnapshot(ctx context.Context, accountID, tunnelID uuid.UUID, raw []byte) (key, sha256hex string, size int64, err error)

	// GetSnapshot retrieves and decompresses a stored snapshot.
	GetSnapshot(ctx context.Context, key string) ([]byte, error)

	// DeleteObject removes a snapshot.
	DeleteObject(ctx context.Context, key string) error

	// Provider returns the backend label (e.g. "s3", "filesystem").
	Provider() string
}

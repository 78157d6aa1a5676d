package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

type BlobMetadata struct {
	Key    string
	SHA256 string
	Size   int64
}

// PrepareBlob compresses and hashes a raw snapshot and generates its key.
// The key embeds the content hash, so re-snapshotting identical state in the
// same second is idempotent.
func PrepareBlob(raw []byte, accountID, tunnelID uuid.UUID, takenAt time.Time) ([]byte, BlobMetadata, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, BlobMetadata{}, fmt.Errorf("storage: gzip write: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, BlobMetadata{}, fmt.Errorf("storage: gzip close: %w", err)
	}

	compressed := buf.Bytes()
	sum := sha256.Sum256(compressed)
	sha256hex := hex.EncodeToString(sum[:])

	// Key: snapshots/<account>/<tunnel>/<YYYY/MM/DD>/<ts>_<sha[:8]>.json.gz
	key := fmt.Sprintf("snapshots/%s/%s/%s/%s_%s.json.gz",
		accountID,
		tunnelID,
		takenAt.UTC().Format("2006/01/02"),
		takenAt.UTC().Format("20060102T150405Z"),
		sha256hex[:8],
	)

	return compressed, BlobMetadata{
		Key:    key,
		SHA256: sha256hex,
		Size:   int64(len(compressed)),
	}, nil
}

// DecompressBlob reads gzip compressed data from a reader.
func DecompressBlob(r io.Reader) ([]byte, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("storage: gzip reader: %w", err)
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

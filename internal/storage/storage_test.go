package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFSStore(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	accountID := uuid.New()
	tunnelID := uuid.New()
	raw := []byte(`{"config":{"ingress":[{"service":"http_status:404"}]}}`)

	key, sha256hex, size, err := store.PutSnapshot(ctx, accountID, tunnelID, raw)
	if err != nil {
		t.Fatalf("PutSnapshot failed: %v", err)
	}
	if key == "" {
		t.Error("expected non-empty key")
	}
	if sha256hex == "" {
		t.Error("expected non-empty hash")
	}
	if size == 0 {
		t.Error("expected non-zero size")
	}

	readBack, err := store.GetSnapshot(ctx, key)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if !bytes.Equal(readBack, raw) {
		t.Errorf("expected %q, got %q", raw, readBack)
	}

	if err := store.DeleteObject(ctx, key); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}

	// Deleting again must be a no-op.
	if err := store.DeleteObject(ctx, key); err != nil {
		t.Fatalf("second DeleteObject failed: %v", err)
	}

	_, err = store.GetSnapshot(ctx, key)
	if err == nil {
		t.Error("expected error getting deleted object")
	}
}

func TestPrepareBlob(t *testing.T) {
	raw := []byte(`{"config":{"ingress":[]}}`)
	accountID := uuid.New()
	tunnelID := uuid.New()
	takenAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	compressed, meta, err := PrepareBlob(raw, accountID, tunnelID, takenAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) == 0 {
		t.Error("expected compressed data")
	}
	if !strings.HasPrefix(meta.Key, "snapshots/"+accountID.String()+"/"+tunnelID.String()+"/2026/03/14/") {
		t.Errorf("unexpected key layout: %s", meta.Key)
	}
	if !strings.Contains(meta.Key, meta.SHA256[:8]) {
		t.Errorf("key %s should embed hash prefix %s", meta.Key, meta.SHA256[:8])
	}

	decompressed, err := DecompressBlob(bytes.NewReader(compressed))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, raw) {
		t.Errorf("roundtrip mismatch: want %q, got %q", raw, decompressed)
	}
}

package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	handle, err := store.Upload(ctx, []byte("image-bytes"), "stol-lider_A-12_3_deadbeef.jpg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if handle == "" {
		t.Fatalf("expected non-empty handle")
	}

	ok, err := store.Exists(ctx, handle)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	data, err := store.Download(ctx, handle)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(data, []byte("image-bytes")) {
		t.Fatalf("Download returned %q", data)
	}

	if err := store.Delete(ctx, handle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = store.Exists(ctx, handle)
	if err != nil || ok {
		t.Fatalf("Exists after delete = %v, %v; want false", ok, err)
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, handle); err != nil {
		t.Fatalf("Delete missing handle: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Upload(context.Background(), []byte("x"), "../escape.jpg"); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestFileBlobStore(t *testing.T) {
	s := NewFileBlobStore(t.TempDir())
	ctx := context.Background()

	if _, err := s.Get(ctx, "main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get missing: err = %v, want ErrNotFound", err)
	}

	data := []byte("shard bytes")
	if err := s.Put(ctx, "main", data); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "main")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}

	if err := s.Put(ctx, "main", []byte("newer")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get(ctx, "main")
	if string(got) != "newer" {
		t.Fatalf("got %q after overwrite", got)
	}

	if err := s.Delete(ctx, "main"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "main"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "main"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

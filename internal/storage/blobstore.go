// Package storage abstracts the remote backup target as an opaque blob
// service. Nothing here sees plaintext: blobs are always the erasure-coded
// shard file, and their integrity is re-verified from the shard hashes after
// every Get.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

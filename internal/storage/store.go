package storage

import "context"

// Store is the asset-store collaborator used to stage generated images.
// Upload returns an opaque handle that later calls use to address the asset.
// In production this is backed by a hosted drive; FileStore serves local and
// test environments.
type Store interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
	Exists(ctx context.Context, handle string) (bool, error)
	Download(ctx context.Context, handle string) ([]byte, error)
	Delete(ctx context.Context, handle string) error
}

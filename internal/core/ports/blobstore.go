package ports

import "context"

// BlobStore is an opaque content-addressed object store used to distribute
// consignments and media. Blobs are keyed by the hash of their content and
// never interpreted by the core.
type BlobStore interface {
	// Put stores the blob and returns its content hash.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves a blob by content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Del removes a blob by content hash. Removing a missing blob is not an
	// error.
	Del(ctx context.Context, hash string) error
	// Close releases the underlying store.
	Close() error
}

// Package blob implements the blob half of the version store: durable,
// content-immutable storage of one object per (file, version), addressed
// deterministically by position rather than content hash.
package blob

import (
	"context"
	"fmt"
	"io"
)

// Key returns the object key for a file version. Keys never change meaning
// once written; the version number is the identity.
func Key(projectID, fileID string, version int64) string {
	return fmt.Sprintf("%s/%s_v%d", projectID, fileID, version)
}

// Store is the blob storage backend.
type Store interface {
	// Put writes the blob. It must succeed before the corresponding version
	// metadata record is written.
	Put(ctx context.Context, key string, content []byte) error

	// Get returns the blob as a lazily-consumed, non-restartable stream.
	// Returns apperr.CodeNotFound if the blob was deleted or never existed.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting an absent key is not an error, so a
	// partially failed sweep can safely retry.
	Delete(ctx context.Context, key string) error
}

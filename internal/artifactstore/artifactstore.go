package artifactstore

import (
	"context"
	"io"
)

// Store keeps the uploaded artifacts until the restore runner consumes them.
type Store interface {
	// Put stores the artifact of an operation and returns its reference.
	Put(ctx context.Context, operationID, filename string, r io.Reader) (ref string, err error)
	// Open returns the stored artifact, model.ErrNotFound if missing.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes a stored artifact, missing artifacts are ignored.
	Delete(ctx context.Context, ref string) error
}

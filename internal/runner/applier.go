package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// Applier restores a single artifact entry into the target system.
type Applier interface {
	Apply(ctx context.Context, op model.Operation, e Entry, r io.Reader) error
}

// LogApplier is an Applier that only reads and logs the entries. It's the default
// applier, restoring the records is up to the embedding application.
type LogApplier struct {
	Logger log.Logger
}

func (a LogApplier) Apply(ctx context.Context, op model.Operation, e Entry, r io.Reader) error {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return fmt.Errorf("could not read entry %s: %w", e.Name, err)
	}

	logger := a.Logger
	if logger == nil {
		logger = log.Noop
	}
	logger.WithValues(log.Kv{"operation-id": op.ID, "database": e.Database}).Debugf("Applied %s (%d bytes)", e.Name, n)

	return nil
}

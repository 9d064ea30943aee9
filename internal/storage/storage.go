package storage

import (
	"context"

	"github.com/slok/restorewatch/internal/model"
)

// Repository is the interface for operation and progress event persistence.
type Repository interface {
	CreateOperation(ctx context.Context, op model.Operation) error
	GetOperation(ctx context.Context, id string) (*model.Operation, error)
	// ListOperations returns all operations with their latest event, newest first.
	ListOperations(ctx context.Context) ([]model.OperationSummary, error)
	UpdateOperation(ctx context.Context, op model.Operation) error

	// AppendEvent appends an event to the operation log. The ID, sequence and timestamp (when
	// missing) are assigned by the repository, and the stage transition is validated against
	// the latest event.
	AppendEvent(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error)
	// ListEvents returns the operation events with a sequence greater than afterSeq, ordered.
	ListEvents(ctx context.Context, operationID string, afterSeq int) ([]model.ProgressEvent, error)
}

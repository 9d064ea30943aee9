package lib

import (
	"context"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/model"
)

// ListOperations returns the server operations with their latest stage.
// Pass nil opts to list everything.
func (c *Client) ListOperations(ctx context.Context, opts *ListOperationsOpts) ([]Operation, error) {
	var filter api.ListFilter
	if opts != nil {
		if opts.Status != nil {
			filter.Status = model.OperationStatus(*opts.Status)
		}
		if opts.Kind != nil {
			filter.Kind = model.Kind(*opts.Kind)
		}
	}

	ops, err := c.api.List(ctx, filter)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalSummaryList(ops), nil
}

// History returns the ordered progress event log of an operation.
func (c *Client) History(ctx context.Context, operationID string) ([]Event, error) {
	events, err := c.api.History(ctx, operationID)
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalEventList(events), nil
}

// Cancel requests the cancellation of a running operation. The restore ends failed once
// the server stops it.
func (c *Client) Cancel(ctx context.Context, operationID string) error {
	return mapError(c.api.Cancel(ctx, operationID))
}

package list

import (
	"context"
	"fmt"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})

	return nil
}

// Service lists restore operations with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show operations with this status.
	StatusFilter *model.OperationStatus
	// KindFilter is an optional filter to only show operations of this kind.
	KindFilter *model.Kind
}

// Run lists all operations newest first, optionally filtered.
func (s *Service) Run(ctx context.Context, req Request) ([]model.OperationSummary, error) {
	s.logger.Debugf("listing operations with status filter %v and kind filter %v", req.StatusFilter, req.KindFilter)

	ops, err := s.repo.ListOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list operations: %w", err)
	}

	if req.StatusFilter == nil && req.KindFilter == nil {
		return ops, nil
	}

	filtered := make([]model.OperationSummary, 0, len(ops))
	for _, op := range ops {
		if req.StatusFilter != nil && op.Status() != *req.StatusFilter {
			continue
		}
		if req.KindFilter != nil && op.Operation.Kind != *req.KindFilter {
			continue
		}
		filtered = append(filtered, op)
	}

	s.logger.Debugf("found %d operations", len(filtered))
	return filtered, nil
}

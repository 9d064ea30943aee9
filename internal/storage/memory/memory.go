package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	operations map[string]model.Operation
	events     map[string][]model.ProgressEvent
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		operations: make(map[string]model.Operation),
		events:     make(map[string][]model.ProgressEvent),
		logger:     cfg.Logger,
	}, nil
}

func (r *Repository) CreateOperation(ctx context.Context, op model.Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operations[op.ID]; ok {
		return fmt.Errorf("operation with id %s: %w", op.ID, model.ErrAlreadyExists)
	}
	r.operations[op.ID] = op
	r.logger.Debugf("Created operation in repository: %s", op.ID)

	return nil
}

func (r *Repository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operations[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, model.ErrNotFound)
	}

	return &op, nil
}

func (r *Repository) ListOperations(ctx context.Context) ([]model.OperationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]model.OperationSummary, 0, len(r.operations))
	for _, op := range r.operations {
		s := model.OperationSummary{Operation: op}
		if evs := r.events[op.ID]; len(evs) > 0 {
			last := copyEvent(evs[len(evs)-1])
			s.Last = &last
		}
		ops = append(ops, s)
	}

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Operation.StartedAt.After(ops[j].Operation.StartedAt)
	})

	return ops, nil
}

func (r *Repository) UpdateOperation(ctx context.Context, op model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operations[op.ID]; !ok {
		return fmt.Errorf("operation %s: %w", op.ID, model.ErrNotFound)
	}
	r.operations[op.ID] = op

	return nil
}

func (r *Repository) AppendEvent(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.operations[ev.OperationID]; !ok {
		return nil, fmt.Errorf("operation %s: %w", ev.OperationID, model.ErrNotFound)
	}

	evs := r.events[ev.OperationID]
	var prev model.Stage
	if len(evs) > 0 {
		prev = evs[len(evs)-1].Stage
	}
	if err := model.ValidateServerTransition(prev, ev.Stage); err != nil {
		return nil, err
	}

	ev = copyEvent(ev)
	ev.ID = ulid.Make().String()
	ev.Sequence = len(evs) + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	r.events[ev.OperationID] = append(evs, ev)

	out := copyEvent(ev)
	return &out, nil
}

func (r *Repository) ListEvents(ctx context.Context, operationID string, afterSeq int) ([]model.ProgressEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := []model.ProgressEvent{}
	for _, ev := range r.events[operationID] {
		if ev.Sequence > afterSeq {
			events = append(events, copyEvent(ev))
		}
	}

	return events, nil
}

func copyEvent(ev model.ProgressEvent) model.ProgressEvent {
	ev.Details = maps.Clone(ev.Details)
	return ev
}

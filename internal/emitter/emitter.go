package emitter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage"
)

// HubConfig is the configuration for the Hub.
type HubConfig struct {
	Repository storage.Repository
	// BufferSize is the live event buffer per subscriber. Slow subscribers exceeding it are
	// disconnected.
	BufferSize int
	Logger     log.Logger
}

func (c *HubConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "emitter.Hub"})
	return nil
}

// Hub persists progress events and fans them out to the operation subscribers.
type Hub struct {
	repo       storage.Repository
	bufferSize int
	logger     log.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub(cfg HubConfig) (*Hub, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Hub{
		repo:       cfg.Repository,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		subs:       map[string]map[*Subscription]struct{}{},
	}, nil
}

// Emit persists the event and delivers it to the live subscribers. Invalid transitions, like
// any event after a terminal stage, are rejected and not delivered.
func (h *Hub) Emit(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stored, err := h.repo.AppendEvent(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("could not append event: %w", err)
	}

	for sub := range h.subs[stored.OperationID] {
		select {
		case sub.live <- *stored:
		default:
			h.logger.Warningf("Subscriber of %s is too slow, disconnecting", stored.OperationID)
			h.removeLocked(sub)
		}
	}

	if stored.Stage.IsTerminal() {
		for sub := range h.subs[stored.OperationID] {
			h.removeLocked(sub)
		}
	}

	return stored, nil
}

// Subscribe returns a subscription that replays the persisted events of the operation from
// the first one, followed by the live events. It returns model.ErrNotFound when the
// operation does not exist.
func (h *Hub) Subscribe(ctx context.Context, operationID string) (*Subscription, error) {
	if _, err := h.repo.GetOperation(ctx, operationID); err != nil {
		return nil, err
	}

	sub := &Subscription{
		h:           h,
		live:        make(chan model.ProgressEvent, h.bufferSize),
		operationID: operationID,
	}

	// Registered before loading the log so no event falls between both.
	h.mu.Lock()
	if h.subs[operationID] == nil {
		h.subs[operationID] = map[*Subscription]struct{}{}
	}
	h.subs[operationID][sub] = struct{}{}
	h.mu.Unlock()

	replay, err := h.repo.ListEvents(ctx, operationID, 0)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("could not list events: %w", err)
	}
	sub.replay = replay

	// Already terminal operations don't receive more events.
	if n := len(replay); n > 0 && replay[n-1].Stage.IsTerminal() {
		sub.Close()
	}

	return sub, nil
}

// Subscribers returns the number of live subscribers of an operation.
func (h *Hub) Subscribers(operationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[operationID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	subs := h.subs[sub.operationID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.live)
	if len(subs) == 0 {
		delete(h.subs, sub.operationID)
	}
}

// Subscription is an ordered event stream of a single operation.
type Subscription struct {
	h           *Hub
	operationID string
	replay      []model.ProgressEvent
	live        chan model.ProgressEvent
	lastSeq     int
	done        bool
}

// Next returns the next event in sequence order. It returns io.EOF after the terminal event
// or when the subscription was closed by the hub.
func (s *Subscription) Next(ctx context.Context) (model.ProgressEvent, error) {
	if s.done {
		return model.ProgressEvent{}, io.EOF
	}

	for len(s.replay) > 0 {
		ev := s.replay[0]
		s.replay = s.replay[1:]
		if ev.Sequence <= s.lastSeq {
			continue
		}
		return s.deliver(ev), nil
	}

	for {
		select {
		case <-ctx.Done():
			return model.ProgressEvent{}, ctx.Err()
		case ev, ok := <-s.live:
			if !ok {
				s.done = true
				return model.ProgressEvent{}, io.EOF
			}
			// Live events already replayed from the log.
			if ev.Sequence <= s.lastSeq {
				continue
			}
			return s.deliver(ev), nil
		}
	}
}

func (s *Subscription) deliver(ev model.ProgressEvent) model.ProgressEvent {
	s.lastSeq = ev.Sequence
	if ev.Stage.IsTerminal() {
		s.done = true
	}
	return ev
}

// Close unregisters the subscription.
func (s *Subscription) Close() { s.h.remove(s) }

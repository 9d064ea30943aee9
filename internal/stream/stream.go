package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/progress"
)

// Subscription is an open progress channel.
type Subscription interface {
	Next() (api.Message, error)
	Close() error
}

// Subscriber opens progress channels.
type Subscriber interface {
	Subscribe(ctx context.Context, operationID string) (Subscription, error)
}

type apiSubscriber struct{ c *api.Client }

// NewAPISubscriber returns a Subscriber backed by the API client.
func NewAPISubscriber(c *api.Client) Subscriber { return apiSubscriber{c: c} }

func (a apiSubscriber) Subscribe(ctx context.Context, operationID string) (Subscription, error) {
	s, err := a.c.Subscribe(ctx, operationID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// WatcherConfig is the configuration for the Watcher.
type WatcherConfig struct {
	Subscriber Subscriber
	Logger     log.Logger
}

func (c *WatcherConfig) defaults() error {
	if c.Subscriber == nil {
		return fmt.Errorf("subscriber is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stream.Watcher"})
	return nil
}

// Watcher consumes the progress channel of an operation and feeds the tracker.
type Watcher struct {
	subscriber Subscriber
	logger     log.Logger
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Watcher{
		subscriber: cfg.Subscriber,
		logger:     cfg.Logger,
	}, nil
}

// Watch subscribes to the operation channel and applies the messages to the tracker until
// the operation reaches a terminal state, then the channel is closed.
//
// It returns nil when the tracker is terminal. Ambiguous conditions return a
// *model.StreamNotFoundError or a *model.StreamTransportError, the caller must reconcile.
func (w *Watcher) Watch(ctx context.Context, operationID string, tracker *progress.Tracker) error {
	logger := w.logger.WithValues(log.Kv{"operation-id": operationID})

	if tracker.Terminal() {
		return nil
	}

	sub, err := w.subscriber.Subscribe(ctx, operationID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, model.ErrNotFound) {
			return &model.StreamNotFoundError{OperationID: operationID, Message: err.Error()}
		}
		return &model.StreamTransportError{OperationID: operationID, Err: err}
	}
	defer sub.Close()

	// Unblock the channel read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	logger.Debugf("Subscribed to progress channel")

	for {
		msg, err := sub.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, model.ErrNotValid) {
				logger.Warningf("Ignoring invalid progress message: %s", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return &model.StreamTransportError{OperationID: operationID, Err: err}
		}

		switch msg.Kind {
		case api.MessageCompleted:
			tracker.Complete(msg.Details)
			logger.Infof("Operation completed")
			return nil

		case api.MessageError:
			if progress.IsNotFoundMessage(msg.Error) {
				return &model.StreamNotFoundError{OperationID: operationID, Message: msg.Error}
			}
			tracker.Fail(msg.Error)
			logger.Warningf("Operation failed: %s", msg.Error)
			return nil

		case api.MessageProgress:
			if progress.Classify(msg.Event) == progress.OutcomeAmbiguous {
				return &model.StreamNotFoundError{OperationID: operationID, Message: msg.Event.Error}
			}
			if tracker.Apply(msg.Event) {
				logger.Debugf("Stage %s at %d%%", msg.Event.Stage, msg.Event.Progress)
			}
			if tracker.Terminal() {
				return nil
			}
		}
	}
}

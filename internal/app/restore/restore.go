package restore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/progress"
	"github.com/slok/restorewatch/internal/upload"
)

// Uploader initiates the restore operation.
type Uploader interface {
	Submit(ctx context.Context, r upload.Request) (string, error)
}

// Watcher consumes the progress channel until a terminal state or an ambiguous condition.
type Watcher interface {
	Watch(ctx context.Context, operationID string, tracker *progress.Tracker) error
}

// Reconciler resolves the operation status from the durable log.
type Reconciler interface {
	Reconcile(ctx context.Context, operationID string, tracker *progress.Tracker) (bool, error)
}

// KeyProvider asks for the decryption key of an encrypted artifact.
type KeyProvider interface {
	Key(ctx context.Context, filename string) (string, error)
}

// Canceler requests the server side cancellation of an operation.
type Canceler interface {
	Cancel(ctx context.Context, operationID string) error
}

// ServiceConfig is the configuration for the restore service.
type ServiceConfig struct {
	Uploader   Uploader
	Watcher    Watcher
	Reconciler Reconciler
	// KeyProvider is optional, without it encrypted artifacts with no key stop at waiting_key.
	KeyProvider KeyProvider
	// KeyWaitTimeout bounds the wait for a decryption key.
	KeyWaitTimeout time.Duration
	// Canceler is optional, used to cancel the server operation when the context ends.
	Canceler Canceler
	// MaxResubscriptions is the number of times the progress channel is reopened after a
	// reconciliation found the operation still running.
	MaxResubscriptions int
	Logger             log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Uploader == nil {
		return fmt.Errorf("uploader is required")
	}
	if c.Watcher == nil {
		return fmt.Errorf("watcher is required")
	}
	if c.Reconciler == nil {
		return fmt.Errorf("reconciler is required")
	}
	if c.KeyWaitTimeout <= 0 {
		c.KeyWaitTimeout = 10 * time.Minute
	}
	if c.MaxResubscriptions <= 0 {
		c.MaxResubscriptions = 3
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	return nil
}

// Service runs the client side restore pipeline: inspection, key wait, upload, progress
// channel and history reconciliation.
type Service struct {
	uploader       Uploader
	watcher        Watcher
	reconciler     Reconciler
	keys           KeyProvider
	keyWaitTimeout time.Duration
	canceler       Canceler
	maxResubs      int
	logger         log.Logger
}

// NewService creates a new restore service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		uploader:       cfg.Uploader,
		watcher:        cfg.Watcher,
		reconciler:     cfg.Reconciler,
		keys:           cfg.KeyProvider,
		keyWaitTimeout: cfg.KeyWaitTimeout,
		canceler:       cfg.Canceler,
		maxResubs:      cfg.MaxResubscriptions,
		logger:         cfg.Logger,
	}, nil
}

// Request represents the restore request parameters.
type Request struct {
	Artifact      io.Reader
	Filename      string
	DecryptionKey string
	// OnUpdate is called on every view change.
	OnUpdate func(model.ClientView)
	// OnTerminal is called once when the operation completes or fails.
	OnTerminal func(model.ClientView)
}

// Response is the restore result.
type Response struct {
	Classification model.Classification
	View           model.ClientView
}

// Run executes the restore pipeline. A failed operation returns a *model.TerminalFailure
// with the response view.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if req.Artifact == nil {
		return nil, fmt.Errorf("artifact is required: %w", model.ErrNotValid)
	}

	logger := s.logger.WithValues(log.Kv{"filename": req.Filename})
	tracker := progress.NewTracker(progress.TrackerConfig{
		OnUpdate:   req.OnUpdate,
		OnTerminal: req.OnTerminal,
		Logger:     logger,
	})
	tracker.SetLocalStage(model.StageDetecting, "Detecting artifact type")

	br := bufio.NewReaderSize(req.Artifact, 64*1024)
	cls, err := artifact.InspectReader(br, req.Filename)
	if err != nil {
		logger.Warningf("Falling back to filename classification: %s", err)
	}
	resp := &Response{Classification: cls}
	logger.Debugf("Artifact classified as %s (encrypted: %t)", cls.Kind, cls.Encrypted)

	key := req.DecryptionKey
	if cls.Encrypted && key == "" {
		tracker.SetLocalStage(model.StageWaitingKey, "Waiting for decryption key")
		key, err = s.waitKey(ctx, req.Filename)
		if err != nil {
			resp.View = tracker.View()
			return resp, err
		}
	}

	tracker.SetLocalStage(model.StageUploading, "Uploading artifact")
	opID, err := s.uploader.Submit(ctx, upload.Request{
		Artifact:       br,
		Filename:       req.Filename,
		Classification: cls,
		DecryptionKey:  key,
	})
	if err != nil {
		tracker.Fail(err.Error())
		resp.View = tracker.View()
		return resp, err
	}

	logger = logger.WithValues(log.Kv{"operation-id": opID})
	tracker.SetOperation(opID)
	tracker.SetLocalStage(model.StageUploaded, "Artifact uploaded")

	if err := s.follow(ctx, opID, tracker, logger); err != nil {
		if ctx.Err() != nil {
			s.cancel(opID, logger)
		}
		resp.View = tracker.View()
		return resp, err
	}

	resp.View = tracker.View()
	if resp.View.Failed {
		return resp, &model.TerminalFailure{OperationID: opID, Stage: resp.View.CurrentStage, Message: resp.View.Error}
	}

	return resp, nil
}

// follow alternates between the progress channel and the reconciler, only one is active at
// a time, until the tracker is terminal.
func (s *Service) follow(ctx context.Context, opID string, tracker *progress.Tracker, logger log.Logger) error {
	resubs := 0
	for {
		err := s.watcher.Watch(ctx, opID, tracker)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !model.IsRecoverable(err) {
			tracker.Fail(err.Error())
			return fmt.Errorf("could not watch operation: %w", err)
		}

		logger.Warningf("Progress channel lost, reconciling: %s", err)
		terminal, rerr := s.reconciler.Reconcile(ctx, opID, tracker)
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tracker.Fail(rerr.Error())
			return rerr
		}
		if terminal {
			return nil
		}

		resubs++
		if resubs > s.maxResubs {
			rerr := &model.ReconciliationExhausted{OperationID: opID, Attempts: resubs, Err: err}
			tracker.Fail(rerr.Error())
			return rerr
		}
		logger.Infof("Operation still running, resubscribing (%d/%d)", resubs, s.maxResubs)
	}
}

func (s *Service) waitKey(ctx context.Context, filename string) (string, error) {
	if s.keys == nil {
		return "", &model.KeyRequiredError{Filename: filename}
	}

	ctx, cancel := context.WithTimeout(ctx, s.keyWaitTimeout)
	defer cancel()

	key, err := s.keys.Key(ctx, filename)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "", &model.KeyRequiredError{Filename: filename, Err: model.ErrKeyWaitExpired}
	case err != nil:
		return "", &model.KeyRequiredError{Filename: filename, Err: err}
	case key == "":
		return "", &model.KeyRequiredError{Filename: filename}
	}

	return key, nil
}

// cancel sends a best effort cancellation, the result is ignored.
func (s *Service) cancel(opID string, logger log.Logger) {
	if s.canceler == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.canceler.Cancel(ctx, opID); err != nil {
		logger.Debugf("Cancel request failed: %s", err)
		return
	}
	logger.Infof("Operation cancellation requested")
}

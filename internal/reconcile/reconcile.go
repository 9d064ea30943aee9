package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/progress"
)

// HistoryGetter returns the durable event log of an operation ordered by sequence.
type HistoryGetter interface {
	History(ctx context.Context, operationID string) ([]model.ProgressEvent, error)
}

// ReconcilerConfig is the configuration for the Reconciler.
type ReconcilerConfig struct {
	History HistoryGetter
	// Attempts is the number of history fetches before giving up.
	Attempts int
	// Backoff is the base wait, attempt n waits n times the base.
	Backoff time.Duration
	// AttemptTimeout bounds every history fetch.
	AttemptTimeout time.Duration
	Logger         log.Logger
}

func (c *ReconcilerConfig) defaults() error {
	if c.History == nil {
		return fmt.Errorf("history getter is required")
	}
	if c.Attempts <= 0 {
		c.Attempts = 6
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "reconcile.Reconciler"})
	return nil
}

// Reconciler resolves the status of an operation from its durable event log.
type Reconciler struct {
	history        HistoryGetter
	attempts       int
	backoff        time.Duration
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         log.Logger
}

func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Reconciler{
		history:        cfg.History,
		attempts:       cfg.Attempts,
		backoff:        cfg.Backoff,
		attemptTimeout: cfg.AttemptTimeout,
		sleep:          sleep,
		logger:         cfg.Logger,
	}, nil
}

// Reconcile fetches the event log, adopts it in the tracker and classifies the latest entry.
// It returns true when the operation is terminal (the tracker terminal callback has been
// fired), false when the operation is still running and the caller should go back to the
// progress channel. When the log stays empty after all the attempts it returns a
// *model.ReconciliationExhausted.
func (r *Reconciler) Reconcile(ctx context.Context, operationID string, tracker *progress.Tracker) (bool, error) {
	logger := r.logger.WithValues(log.Kv{"operation-id": operationID})

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		events, err := r.fetch(ctx, operationID)
		switch {
		case ctx.Err() != nil:
			return false, ctx.Err()
		case err != nil:
			lastErr = err
			logger.Warningf("History attempt %d/%d failed: %s", attempt, r.attempts, err)
		case len(events) == 0:
			lastErr = fmt.Errorf("empty history: %w", model.ErrNotFound)
			logger.Debugf("History attempt %d/%d is empty", attempt, r.attempts)
		default:
			latest := events[len(events)-1]
			outcome := progress.Classify(latest)
			if outcome == progress.OutcomeAmbiguous {
				lastErr = fmt.Errorf("history reports %q: %w", latest.Error, model.ErrNotFound)
				logger.Debugf("History attempt %d/%d is ambiguous", attempt, r.attempts)
				break
			}

			for _, ev := range events {
				tracker.Apply(ev)
			}
			return r.resolve(tracker, latest, outcome, logger), nil
		}

		if attempt < r.attempts {
			if err := r.sleep(ctx, time.Duration(attempt)*r.backoff); err != nil {
				return false, err
			}
		}
	}

	return false, &model.ReconciliationExhausted{OperationID: operationID, Attempts: r.attempts, Err: lastErr}
}

func (r *Reconciler) fetch(ctx context.Context, operationID string) ([]model.ProgressEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	return r.history.History(ctx, operationID)
}

// resolve makes sure the tracker is terminal when the latest entry is, even if the entry was
// already applied by the progress channel.
func (r *Reconciler) resolve(tracker *progress.Tracker, latest model.ProgressEvent, outcome progress.Outcome, logger log.Logger) bool {
	switch outcome {
	case progress.OutcomeCompleted:
		tracker.Complete(latest.Details)
		logger.Infof("Operation resolved as completed from history")
		return true
	case progress.OutcomeFailed:
		msg := latest.Error
		if msg == "" {
			msg = latest.Message
		}
		tracker.Fail(msg)
		logger.Infof("Operation resolved as failed from history")
		return true
	}

	logger.Debugf("Operation still running at stage %s", latest.Stage)
	return tracker.Terminal()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slok/restorewatch/internal/artifactstore"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/storage"
)

// JanitorConfig is the configuration for the Janitor.
type JanitorConfig struct {
	Repository storage.Repository
	Store      artifactstore.Store
	// Retention is how long the artifacts of finished operations are kept.
	Retention time.Duration
	// Schedule is the cron expression of the sweeps.
	Schedule string
	Now      func() time.Time
	Logger   log.Logger
}

func (c *JanitorConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Schedule == "" {
		c.Schedule = "@every 10m"
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "janitor.Janitor"})
	return nil
}

// Janitor deletes the stored artifacts of finished operations once the retention expires.
// The operations and their event logs are kept.
type Janitor struct {
	repo      storage.Repository
	store     artifactstore.Store
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    log.Logger
}

func NewJanitor(cfg JanitorConfig) (*Janitor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Janitor{
		repo:      cfg.Repository,
		store:     cfg.Store,
		retention: cfg.Retention,
		schedule:  cfg.Schedule,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}, nil
}

// Run sweeps on the configured schedule until the context is done.
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Errorf("Artifact sweep failed: %s", err)
		}
	})
	if err != nil {
		return fmt.Errorf("could not schedule sweeps: %w", err)
	}

	j.logger.Infof("Artifact janitor started (schedule %q, retention %s)", j.schedule, j.retention)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

// Sweep deletes the expired artifacts and returns how many were deleted.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	ops, err := j.repo.ListOperations(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not list operations: %w", err)
	}

	deleted := 0
	for _, s := range ops {
		if !j.expired(s) {
			continue
		}

		op := s.Operation
		if err := j.store.Delete(ctx, op.ArtifactRef); err != nil {
			j.logger.Warningf("Could not delete artifact of %s: %s", op.ID, err)
			continue
		}
		op.ArtifactRef = ""
		if err := j.repo.UpdateOperation(ctx, op); err != nil {
			return deleted, fmt.Errorf("could not update operation %s: %w", op.ID, err)
		}
		deleted++
		j.logger.Debugf("Deleted artifact of %s", op.ID)
	}

	if deleted > 0 {
		j.logger.Infof("Deleted %d expired artifacts", deleted)
	}

	return deleted, nil
}

func (j *Janitor) expired(s model.OperationSummary) bool {
	if s.Operation.ArtifactRef == "" || s.Last == nil || !s.Last.Stage.IsTerminal() {
		return false
	}

	finished := s.Last.Timestamp
	if finished.IsZero() {
		finished = s.Operation.StartedAt
	}

	return j.now().Sub(finished) >= j.retention
}

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/artifactstore"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// ErrQueueFull is returned when the runner can't accept more jobs.
var ErrQueueFull = errors.New("restore queue is full")

const cancelledMessage = "operation cancelled"

// Progress checkpoints of the server stages.
const (
	progressStarted    = 5
	progressValidating = 10
	progressDecrypting = 20
	progressExtracting = 35
	progressRestoring  = 50
	progressFinalizing = 95
)

// Emitter records the progress events of the operations.
type Emitter interface {
	Emit(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error)
}

// Job is a restore execution request. The decryption key is only held in memory.
type Job struct {
	Operation     model.Operation
	DecryptionKey string
}

// RunnerConfig is the configuration for the Runner.
type RunnerConfig struct {
	Emitter Emitter
	Store   artifactstore.Store
	Applier Applier
	// WorkDir is where the artifacts are decrypted and unpacked, one directory per operation.
	WorkDir   string
	Workers   int
	QueueSize int
	Logger    log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Emitter == nil {
		return fmt.Errorf("emitter is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner.Runner"})
	if c.Applier == nil {
		c.Applier = LogApplier{Logger: c.Logger}
	}
	return nil
}

type jobState struct {
	cancelled bool
	cancel    context.CancelFunc
}

// Runner executes restore jobs on a bounded worker pool, emitting the progress of each stage.
type Runner struct {
	emitter Emitter
	store   artifactstore.Store
	applier Applier
	workDir string
	workers int
	logger  log.Logger
	queue   chan Job

	mu   sync.Mutex
	jobs map[string]*jobState
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		emitter: cfg.Emitter,
		store:   cfg.Store,
		applier: cfg.Applier,
		workDir: cfg.WorkDir,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		queue:   make(chan Job, cfg.QueueSize),
		jobs:    map[string]*jobState{},
	}, nil
}

// Submit enqueues a job without blocking.
func (r *Runner) Submit(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.Operation.ID]; ok {
		return fmt.Errorf("operation %s already submitted: %w", job.Operation.ID, model.ErrAlreadyExists)
	}

	select {
	case r.queue <- job:
	default:
		return ErrQueueFull
	}
	r.jobs[job.Operation.ID] = &jobState{}

	return nil
}

// Cancel cancels a queued or running job. It returns false if the job is unknown or already finished.
func (r *Runner) Cancel(operationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.jobs[operationID]
	if !ok {
		return false
	}
	st.cancelled = true
	if st.cancel != nil {
		st.cancel()
	}
	return true
}

// Run starts the workers and blocks until the context is done and the running jobs end.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Infof("Starting %d restore workers", r.workers)

	var wg sync.WaitGroup
	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-r.queue:
					r.execute(ctx, job)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	r.logger.Infof("Restore workers stopped")

	return nil
}

func (r *Runner) execute(ctx context.Context, job Job) {
	op := job.Operation
	logger := r.logger.WithValues(log.Kv{"operation-id": op.ID})

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	st := r.jobs[op.ID]
	if st == nil {
		st = &jobState{}
		r.jobs[op.ID] = st
	}
	cancelled := st.cancelled
	st.cancel = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.jobs, op.ID)
		r.mu.Unlock()
	}()

	// Terminal events are recorded even when the job context has been cancelled.
	emitCtx := context.WithoutCancel(ctx)

	var err error
	if cancelled {
		err = context.Canceled
	} else {
		var details map[string]string
		details, err = r.restore(jobCtx, job, logger)
		if err == nil {
			logger.Infof("Restore completed")
			r.emit(emitCtx, logger, model.ProgressEvent{
				OperationID: op.ID,
				Stage:       model.StageRestoreCompleted,
				Progress:    100,
				Message:     "Restore completed",
				Details:     details,
			})
			return
		}
	}

	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = cancelledMessage
	}
	logger.Warningf("Restore failed: %s", msg)
	r.emit(emitCtx, logger, model.ProgressEvent{
		OperationID: op.ID,
		Stage:       model.StageRestoreFailed,
		Message:     "Restore failed",
		Error:       msg,
	})
}

func (r *Runner) emit(ctx context.Context, logger log.Logger, ev model.ProgressEvent) error {
	if _, err := r.emitter.Emit(ctx, ev); err != nil {
		logger.Errorf("Could not emit %s event: %s", ev.Stage, err)
		return err
	}
	return nil
}

func (r *Runner) step(ctx context.Context, logger log.Logger, opID string, stage model.Stage, progress int, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.emit(ctx, logger, model.ProgressEvent{OperationID: opID, Stage: stage, Progress: progress, Message: msg})
}

func (r *Runner) restore(ctx context.Context, job Job, logger log.Logger) (map[string]string, error) {
	op := job.Operation

	dir := filepath.Join(r.workDir, op.ID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warningf("Could not remove work dir: %s", err)
		}
	}()

	if err := r.step(ctx, logger, op.ID, model.StageRestoreStarted, progressStarted, "Restore started"); err != nil {
		return nil, err
	}

	// Validate.
	if err := r.step(ctx, logger, op.ID, model.StageValidating, progressValidating, "Validating artifact"); err != nil {
		return nil, err
	}
	raw, err := r.load(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := validate(op, raw, job.DecryptionKey); err != nil {
		return nil, err
	}

	// Decrypt.
	plain := raw
	if op.Encrypted {
		if err := r.step(ctx, logger, op.ID, model.StageDecrypting, progressDecrypting, "Decrypting artifact"); err != nil {
			return nil, err
		}
		plain, err = artifact.Open(bytes.NewReader(raw), job.DecryptionKey)
		if err != nil {
			return nil, fmt.Errorf("could not decrypt artifact, the key may be wrong: %w", err)
		}
	}

	plainPath := filepath.Join(dir, "artifact")
	if err := os.WriteFile(plainPath, plain, 0o600); err != nil {
		return nil, fmt.Errorf("could not write artifact: %w", err)
	}

	// Extract.
	if err := r.step(ctx, logger, op.ID, model.StageExtracting, progressExtracting, "Extracting artifact"); err != nil {
		return nil, err
	}
	path, format, err := unpack(ctx, plainPath, dir)
	if err != nil {
		return nil, err
	}
	total := 0
	err = walk(ctx, path, format, func(Entry, io.Reader) error { total++; return nil })
	if err != nil {
		return nil, fmt.Errorf("could not read artifact entries: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("artifact has no entries: %w", model.ErrNotValid)
	}
	logger.Debugf("Artifact is %s with %d entries", format, total)

	// Restore.
	var (
		applied   int
		bytesRead int64
		lastStage model.Stage
		lastProg  = -1
	)
	err = walk(ctx, path, format, func(e Entry, rd io.Reader) error {
		stage := model.StageRestoringFiles
		if e.Database || op.Kind == model.KindDatabase {
			stage = model.StageRestoringDatabase
		}

		prog := progressRestoring + applied*(progressFinalizing-1-progressRestoring)/total
		if stage != lastStage || prog != lastProg {
			msg := fmt.Sprintf("Restoring entry %d of %d", applied+1, total)
			if err := r.step(ctx, logger, op.ID, stage, prog, msg); err != nil {
				return err
			}
			lastStage, lastProg = stage, prog
		}

		cr := &countingReader{r: rd}
		if err := r.applier.Apply(ctx, op, e, cr); err != nil {
			return fmt.Errorf("could not restore %s: %w", e.Name, err)
		}
		applied++
		bytesRead += cr.n
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Finalize.
	if err := r.step(ctx, logger, op.ID, model.StageFinalizing, progressFinalizing, "Finalizing restore"); err != nil {
		return nil, err
	}

	return map[string]string{
		"kind":    string(op.Kind),
		"format":  string(format),
		"entries": strconv.Itoa(applied),
		"bytes":   strconv.FormatInt(bytesRead, 10),
	}, nil
}

func (r *Runner) load(ctx context.Context, op model.Operation) ([]byte, error) {
	if op.ArtifactRef == "" {
		return nil, fmt.Errorf("operation has no stored artifact: %w", model.ErrNotFound)
	}

	rc, err := r.store.Open(ctx, op.ArtifactRef)
	if err != nil {
		return nil, fmt.Errorf("could not open stored artifact: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("could not read stored artifact: %w", err)
	}
	return data, nil
}

// validate checks the stored artifact agrees with the operation classification.
func validate(op model.Operation, data []byte, key string) error {
	if len(data) == 0 {
		return fmt.Errorf("artifact is empty: %w", model.ErrNotValid)
	}

	if !op.Encrypted {
		return nil
	}
	if key == "" {
		return fmt.Errorf("artifact is encrypted and no decryption key was provided: %w", model.ErrNotValid)
	}
	if len(data) < artifact.HeaderSize {
		return fmt.Errorf("encrypted artifact is too small: %w", model.ErrNotValid)
	}

	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

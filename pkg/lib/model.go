package lib

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/slok/restorewatch/internal/model"
)

// Errors returned by the SDK. Use [errors.Is] to check for them.
var (
	// ErrNotFound is returned when the operation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when the operation already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when the input is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrUnauthorized is returned when the server rejects the token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrKeyRequired is returned when an encrypted artifact has no decryption key.
	ErrKeyRequired = errors.New("decryption key required")
	// ErrOperationFailed is returned when the restore ends in a failed stage.
	ErrOperationFailed = errors.New("operation failed")
)

// Stage is a named checkpoint of a restore operation.
//
// The typical lifecycle is:
//
//	detecting -> (waiting_key) -> uploading -> uploaded -> restore_started -> validating ->
//	(decrypting) -> extracting -> restoring_* -> finalizing -> restore_completed
//
// An operation can end in restore_failed at any server stage.
type Stage string

const (
	StageDetecting         Stage = "detecting"
	StageWaitingKey        Stage = "waiting_key"
	StageUploading         Stage = "uploading"
	StageUploaded          Stage = "uploaded"
	StageRestoreStarted    Stage = "restore_started"
	StageValidating        Stage = "validating"
	StageDecrypting        Stage = "decrypting"
	StageExtracting        Stage = "extracting"
	StageRestoringDatabase Stage = "restoring_database"
	StageRestoringFiles    Stage = "restoring_files"
	StageFinalizing        Stage = "finalizing"
	StageRestoreCompleted  Stage = "restore_completed"
	StageCompleted         Stage = "completed"
	StageRestoreFailed     Stage = "restore_failed"
	StageFailed            Stage = "failed"
)

// Kind is the kind of backup an artifact holds.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindFiles      Kind = "files"
	KindFullSystem Kind = "full_system"
)

// OperationStatus is the coarse state of an operation.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// Classification is the result of inspecting an artifact.
type Classification struct {
	Kind      Kind
	Encrypted bool
}

// Event is a single progress record of an operation.
type Event struct {
	Sequence  int
	Stage     Stage
	Progress  int
	Message   string
	Timestamp time.Time
	// Error is set on failed stages.
	Error   string
	Details map[string]string
}

// View is the state of a restore as seen by the client.
type View struct {
	OperationID string
	Stage       Stage
	Progress    int
	Message     string
	Terminal    bool
	Failed      bool
	Error       string
	// Details are set by the server when the restore completes.
	Details map[string]string
	Elapsed time.Duration
	// Remaining is nil when it can't be estimated.
	Remaining *time.Duration
	History   []Event
}

// Operation is a server restore operation with its latest event.
type Operation struct {
	ID        string
	Kind      Kind
	Encrypted bool
	Filename  string
	StartedAt time.Time
	Status    OperationStatus
	// Last is nil when the operation has no events yet.
	Last *Event
}

// RestoreOpts configures a restore. Either Path or Artifact must be set.
type RestoreOpts struct {
	// Path is the artifact file path.
	Path string
	// Artifact is read instead of Path when set, Filename is required with it.
	Artifact io.Reader
	// Filename overrides the artifact name used for classification.
	Filename string
	// DecryptionKey of an encrypted artifact.
	DecryptionKey string
	// KeyFunc is called when the artifact is encrypted and DecryptionKey is empty.
	KeyFunc func(ctx context.Context, filename string) (string, error)
	// KeyWaitTimeout bounds KeyFunc.
	// Default: 10m.
	KeyWaitTimeout time.Duration
	// OnProgress is called on every view change.
	OnProgress func(View)
}

// RestoreResult is the outcome of a restore.
type RestoreResult struct {
	Classification Classification
	View           View
}

// ListOperationsOpts filters the operation listing.
type ListOperationsOpts struct {
	Status *OperationStatus
	Kind   *Kind
}

// --- Conversion helpers ---

func fromInternalClassification(c model.Classification) Classification {
	return Classification{Kind: Kind(c.Kind), Encrypted: c.Encrypted}
}

func fromInternalEvent(e model.ProgressEvent) Event {
	return Event{
		Sequence:  e.Sequence,
		Stage:     Stage(e.Stage),
		Progress:  e.Progress,
		Message:   e.Message,
		Timestamp: e.Timestamp,
		Error:     e.Error,
		Details:   e.Details,
	}
}

func fromInternalEventList(es []model.ProgressEvent) []Event {
	result := make([]Event, 0, len(es))
	for _, e := range es {
		result = append(result, fromInternalEvent(e))
	}
	return result
}

func fromInternalView(v model.ClientView) View {
	return View{
		OperationID: v.OperationID,
		Stage:       Stage(v.CurrentStage),
		Progress:    v.Progress,
		Message:     v.Message,
		Terminal:    v.Terminal,
		Failed:      v.Failed,
		Error:       v.Error,
		Details:     v.Details,
		Elapsed:     v.Elapsed,
		Remaining:   v.Remaining,
		History:     fromInternalEventList(v.History),
	}
}

func fromInternalSummary(s model.OperationSummary) Operation {
	op := Operation{
		ID:        s.Operation.ID,
		Kind:      Kind(s.Operation.Kind),
		Encrypted: s.Operation.Encrypted,
		Filename:  s.Operation.Filename,
		StartedAt: s.Operation.StartedAt,
		Status:    OperationStatus(s.Status()),
	}
	if s.Last != nil {
		last := fromInternalEvent(*s.Last)
		op.Last = &last
	}
	return op
}

func fromInternalSummaryList(ss []model.OperationSummary) []Operation {
	result := make([]Operation, 0, len(ss))
	for _, s := range ss {
		result = append(result, fromInternalSummary(s))
	}
	return result
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var keyErr *model.KeyRequiredError
	var failure *model.TerminalFailure
	switch {
	case errors.As(err, &keyErr):
		return joinErrors(err, ErrKeyRequired)
	case errors.As(err, &failure):
		return joinErrors(err, ErrOperationFailed)
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case errors.Is(err, model.ErrUnauthorized):
		return joinErrors(err, ErrUnauthorized)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }

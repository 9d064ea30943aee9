package model

import "fmt"

// Stage is a named checkpoint of an operation lifecycle. The set is closed, both the
// progress channel and the history log are validated against it.
type Stage string

const (
	// Client local stages.
	StageDetecting  Stage = "detecting"
	StageWaitingKey Stage = "waiting_key"
	StageUploading  Stage = "uploading"

	// Server stages.
	StageUploaded          Stage = "uploaded"
	StageRestoreStarted    Stage = "restore_started"
	StageValidating        Stage = "validating"
	StageDecrypting        Stage = "decrypting"
	StageExtracting        Stage = "extracting"
	StageRestoringDatabase Stage = "restoring_database"
	StageRestoringFiles    Stage = "restoring_files"
	StageFinalizing        Stage = "finalizing"

	// Terminal stages.
	StageRestoreCompleted Stage = "restore_completed"
	StageCompleted        Stage = "completed"
	StageRestoreFailed    Stage = "restore_failed"
	StageFailed           Stage = "failed"
)

var validStages = map[Stage]bool{
	StageDetecting:         true,
	StageWaitingKey:        true,
	StageUploading:         true,
	StageUploaded:          true,
	StageRestoreStarted:    true,
	StageValidating:        true,
	StageDecrypting:        true,
	StageExtracting:        true,
	StageRestoringDatabase: true,
	StageRestoringFiles:    true,
	StageFinalizing:        true,
	StageRestoreCompleted:  true,
	StageCompleted:         true,
	StageRestoreFailed:     true,
	StageFailed:            true,
}

// ParseStage parses a stage from the wire, unknown stages are rejected.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !validStages[st] {
		return "", fmt.Errorf("unknown stage %q: %w", s, ErrNotValid)
	}
	return st, nil
}

func (s Stage) Valid() bool { return validStages[s] }

func (s Stage) IsCompleted() bool { return s == StageRestoreCompleted || s == StageCompleted }

func (s Stage) IsFailed() bool { return s == StageRestoreFailed || s == StageFailed }

func (s Stage) IsTerminal() bool { return s.IsCompleted() || s.IsFailed() }

// IsClientLocal returns true for the stages that exist only before the artifact submission.
func (s Stage) IsClientLocal() bool {
	return s == StageDetecting || s == StageWaitingKey || s == StageUploading
}

// ValidateServerTransition checks a server authored stage can follow the previous one.
// An empty previous stage means the operation has no events yet.
func ValidateServerTransition(prev, next Stage) error {
	if !next.Valid() {
		return fmt.Errorf("unknown stage %q: %w", next, ErrNotValid)
	}
	if next.IsClientLocal() {
		return fmt.Errorf("stage %q can't be emitted by the server: %w", next, ErrNotValid)
	}
	if prev.IsTerminal() {
		return fmt.Errorf("operation already reached terminal stage %q: %w", prev, ErrNotValid)
	}
	if prev == "" && next != StageUploaded && !next.IsFailed() {
		return fmt.Errorf("first stage must be %q, got %q: %w", StageUploaded, next, ErrNotValid)
	}
	return nil
}

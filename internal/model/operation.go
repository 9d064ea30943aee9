package model

import (
	"fmt"
	"time"
)

// Kind is the type of restore artifact.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindFiles      Kind = "files"
	KindFullSystem Kind = "full_system"
)

// ParseKind parses a kind from its wire representation.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDatabase, KindFiles, KindFullSystem:
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q: %w", s, ErrNotValid)
}

// Classification is the result of inspecting an artifact.
type Classification struct {
	Kind      Kind
	Encrypted bool
}

// Operation is a single server side restore job.
type Operation struct {
	ID          string
	Kind        Kind
	Encrypted   bool
	Filename    string
	ArtifactRef string
	StartedAt   time.Time
}

// OperationSummary is an operation with its latest known event.
type OperationSummary struct {
	Operation Operation
	Last      *ProgressEvent
}

// Credential is a short lived credential set used to authenticate a single request.
type Credential struct {
	Bearer    string
	CSRFToken string
}

// OperationStatus is the coarse state of an operation derived from its latest event.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
)

// ParseOperationStatus parses an operation status.
func ParseOperationStatus(s string) (OperationStatus, error) {
	switch st := OperationStatus(s); st {
	case OperationStatusRunning, OperationStatusCompleted, OperationStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown operation status %q: %w", s, ErrNotValid)
}

// Status returns the operation status. Operations without events are running.
func (s OperationSummary) Status() OperationStatus {
	switch {
	case s.Last == nil:
		return OperationStatusRunning
	case s.Last.Stage.IsCompleted():
		return OperationStatusCompleted
	case s.Last.Stage.IsFailed():
		return OperationStatusFailed
	}
	return OperationStatusRunning
}

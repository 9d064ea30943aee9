package model

import "time"

// ProgressEvent is a single append-only progress record of an operation.
type ProgressEvent struct {
	ID          string
	OperationID string
	Sequence    int
	Stage       Stage
	Progress    int
	Message     string
	Timestamp   time.Time
	Error       string
	Details     map[string]string
}

// EventKey identifies duplicated deliveries of the same progress step.
type EventKey struct {
	Stage    Stage
	Message  string
	Progress int
}

func (e ProgressEvent) Key() EventKey {
	return EventKey{Stage: e.Stage, Message: e.Message, Progress: e.Progress}
}

// ClientView is the caller visible state of an operation, derived from the events.
type ClientView struct {
	OperationID  string
	CurrentStage Stage
	Progress     int
	Message      string
	History      []ProgressEvent
	Terminal     bool
	Failed       bool
	Error        string
	Details      map[string]string
	StartedAt    time.Time
	Elapsed      time.Duration
	// Remaining is nil when it can't be estimated.
	Remaining *time.Duration
}

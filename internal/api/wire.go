package api

import (
	"fmt"
	"time"

	"github.com/slok/restorewatch/internal/model"
)

// Response is the JSON envelope of every non streaming endpoint.
type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Message is accepted as the rejection text when Error is missing.
	Message string `json:"message,omitempty"`
}

type CSRFToken struct {
	Token string `json:"token"`
}

type Initiated struct {
	OperationID string `json:"operationId"`
}

// Event is the wire representation of a progress event.
type Event struct {
	ID          string            `json:"id,omitempty"`
	OperationID string            `json:"operationId,omitempty"`
	Sequence    int               `json:"sequence"`
	Stage       string            `json:"stage,omitempty"`
	Progress    int               `json:"progress"`
	Message     string            `json:"message,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Error       string            `json:"error,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// Envelope is a single message of the progress channel. It can be a stage envelope, a
// completion signal (status "completed") or an error signal (error without stage).
type Envelope struct {
	Event
	Status string `json:"status,omitempty"`
}

const StatusCompleted = "completed"

// Operation is the wire representation of an operation summary.
type Operation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Encrypted bool      `json:"encrypted"`
	Filename  string    `json:"filename"`
	StartedAt time.Time `json:"startedAt"`
	Last      *Event    `json:"last,omitempty"`
}

// Multipart form fields of the initiation request.
const (
	FieldArtifact         = "artifact"
	FieldDecryptionKey    = "decryption_key"
	FieldOriginalFilename = "original_filename"
	FieldKind             = "kind"
	FieldEncrypted        = "encrypted"
)

// Headers.
const (
	HeaderCSRFToken = "X-CSRF-Token"
)

func FromModelEvent(e model.ProgressEvent) Event {
	return Event{
		ID:          e.ID,
		OperationID: e.OperationID,
		Sequence:    e.Sequence,
		Stage:       string(e.Stage),
		Progress:    e.Progress,
		Message:     e.Message,
		Timestamp:   e.Timestamp,
		Error:       e.Error,
		Details:     e.Details,
	}
}

// ToModel converts a wire event into a model event, the stage is validated.
func (e Event) ToModel() (model.ProgressEvent, error) {
	st, err := model.ParseStage(e.Stage)
	if err != nil {
		return model.ProgressEvent{}, fmt.Errorf("invalid event %d: %w", e.Sequence, err)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return model.ProgressEvent{}, fmt.Errorf("invalid event %d progress %d: %w", e.Sequence, e.Progress, model.ErrNotValid)
	}

	return model.ProgressEvent{
		ID:          e.ID,
		OperationID: e.OperationID,
		Sequence:    e.Sequence,
		Stage:       st,
		Progress:    e.Progress,
		Message:     e.Message,
		Timestamp:   e.Timestamp,
		Error:       e.Error,
		Details:     e.Details,
	}, nil
}

func FromModelSummary(s model.OperationSummary) Operation {
	op := Operation{
		ID:        s.Operation.ID,
		Kind:      string(s.Operation.Kind),
		Encrypted: s.Operation.Encrypted,
		Filename:  s.Operation.Filename,
		StartedAt: s.Operation.StartedAt,
	}
	if s.Last != nil {
		e := FromModelEvent(*s.Last)
		op.Last = &e
	}
	return op
}

func (o Operation) ToModel() (model.OperationSummary, error) {
	kind, err := model.ParseKind(o.Kind)
	if err != nil {
		return model.OperationSummary{}, err
	}

	s := model.OperationSummary{
		Operation: model.Operation{
			ID:        o.ID,
			Kind:      kind,
			Encrypted: o.Encrypted,
			Filename:  o.Filename,
			StartedAt: o.StartedAt,
		},
	}
	if o.Last != nil {
		e, err := o.Last.ToModel()
		if err != nil {
			return model.OperationSummary{}, err
		}
		s.Last = &e
	}

	return s, nil
}

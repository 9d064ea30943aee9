package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/restorewatch/internal/model"
)

// JSONPrinter prints restore information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents an operation in the list output.
type listItem struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Kind      string    `json:"kind"`
	Encrypted bool      `json:"encrypted"`
	Status    string    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	StartedAt time.Time `json:"started_at"`
}

type eventOutput struct {
	Sequence  int               `json:"sequence"`
	Stage     string            `json:"stage"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type viewOutput struct {
	OperationID      string            `json:"operation_id"`
	Stage            string            `json:"stage"`
	Progress         int               `json:"progress"`
	Message          string            `json:"message,omitempty"`
	Terminal         bool              `json:"terminal"`
	Failed           bool              `json:"failed"`
	Error            string            `json:"error,omitempty"`
	Details          map[string]string `json:"details,omitempty"`
	ElapsedSeconds   float64           `json:"elapsed_seconds"`
	RemainingSeconds *float64          `json:"remaining_seconds,omitempty"`
	History          []eventOutput     `json:"history"`
}

type classificationOutput struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Kind      string `json:"kind"`
	Encrypted bool   `json:"encrypted"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints operations in JSON format.
func (j *JSONPrinter) PrintList(ops []model.OperationSummary) error {
	items := make([]listItem, len(ops))
	for i, s := range ops {
		items[i] = listItem{
			ID:        s.Operation.ID,
			Filename:  s.Operation.Filename,
			Kind:      string(s.Operation.Kind),
			Encrypted: s.Operation.Encrypted,
			Status:    string(s.Status()),
			StartedAt: s.Operation.StartedAt.UTC(),
		}
		if s.Last != nil {
			items[i].Stage = string(s.Last.Stage)
			items[i].Progress = s.Last.Progress
		}
	}

	return j.encode(items)
}

// PrintHistory prints the event log of an operation in JSON format.
func (j *JSONPrinter) PrintHistory(events []model.ProgressEvent) error {
	return j.encode(toEventOutputs(events))
}

// PrintView prints the state of an operation in JSON format.
func (j *JSONPrinter) PrintView(v model.ClientView) error {
	out := viewOutput{
		OperationID:    v.OperationID,
		Stage:          string(v.CurrentStage),
		Progress:       v.Progress,
		Message:        v.Message,
		Terminal:       v.Terminal,
		Failed:         v.Failed,
		Error:          v.Error,
		Details:        v.Details,
		ElapsedSeconds: v.Elapsed.Round(time.Second).Seconds(),
		History:        toEventOutputs(v.History),
	}
	if v.Remaining != nil {
		r := v.Remaining.Round(time.Second).Seconds()
		out.RemainingSeconds = &r
	}

	return j.encode(out)
}

// PrintClassification prints the inspection result of an artifact in JSON format.
func (j *JSONPrinter) PrintClassification(filename string, size int64, c model.Classification) error {
	return j.encode(classificationOutput{
		Filename:  filename,
		SizeBytes: size,
		Kind:      string(c.Kind),
		Encrypted: c.Encrypted,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toEventOutputs(events []model.ProgressEvent) []eventOutput {
	out := make([]eventOutput, len(events))
	for i, e := range events {
		out[i] = eventOutput{
			Sequence:  e.Sequence,
			Stage:     string(e.Stage),
			Progress:  e.Progress,
			Message:   e.Message,
			Error:     e.Error,
			Details:   e.Details,
			Timestamp: e.Timestamp.UTC(),
		}
	}
	return out
}

package progress

import (
	"strings"

	"github.com/slok/restorewatch/internal/model"
)

// Outcome is the classification of a progress event.
type Outcome int

const (
	// OutcomeRunning means the operation is still in progress.
	OutcomeRunning Outcome = iota
	// OutcomeCompleted means the operation finished successfully.
	OutcomeCompleted
	// OutcomeFailed means the operation finished with an error.
	OutcomeFailed
	// OutcomeAmbiguous means the source can't tell the status, it needs reconciliation.
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Classify resolves the outcome of an event. Stream and history use the same rules.
func Classify(ev model.ProgressEvent) Outcome {
	switch {
	case ev.Stage.IsFailed():
		return OutcomeFailed
	case ev.Error != "" && IsNotFoundMessage(ev.Error):
		return OutcomeAmbiguous
	case ev.Error != "":
		return OutcomeFailed
	case ev.Stage.IsCompleted(), ev.Progress >= 100:
		return OutcomeCompleted
	}
	return OutcomeRunning
}

// Only the operation itself being unknown counts, domain errors like a missing table are
// regular failures.
var notFoundMarkers = []string{
	"operation not found",
	"operation not yet known",
	"unknown operation",
}

// IsNotFoundMessage returns true when an error text means the operation is not known (yet)
// by the server.
func IsNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range notFoundMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrUnauthorized is returned when a credential is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrKeyWaitExpired is returned when no decryption key arrived in time.
	ErrKeyWaitExpired = errors.New("decryption key wait expired")
)

// ClassificationError is returned when an artifact header can't be read. It's not fatal,
// the classification falls back to the filename rules.
type ClassificationError struct {
	Filename string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("could not classify artifact %q: %s", e.Filename, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// KeyRequiredError is returned when the pipeline is suspended at waiting_key and no
// decryption key was provided.
type KeyRequiredError struct {
	Filename string
	Err      error
}

func (e *KeyRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact %q is encrypted and requires a decryption key: %s", e.Filename, e.Err)
	}
	return fmt.Sprintf("artifact %q is encrypted and requires a decryption key", e.Filename)
}

func (e *KeyRequiredError) Unwrap() error { return e.Err }

// InitiationError is returned when the restore could not be initiated. Always fatal.
type InitiationError struct {
	Message string
	Err     error
}

func (e *InitiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not initiate restore: %s: %s", e.Message, e.Err)
	}
	return fmt.Sprintf("could not initiate restore: %s", e.Message)
}

func (e *InitiationError) Unwrap() error { return e.Err }

// StreamNotFoundError is returned by the progress channel when the operation is not known
// (yet) by the server. Recoverable by reconciliation.
type StreamNotFoundError struct {
	OperationID string
	Message     string
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("operation %s not found on progress channel: %s", e.OperationID, e.Message)
}

func (e *StreamNotFoundError) Unwrap() error { return ErrNotFound }

// StreamTransportError is returned when the progress channel breaks before a terminal signal.
// Recoverable by reconciliation.
type StreamTransportError struct {
	OperationID string
	Err         error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("progress channel for operation %s broken: %s", e.OperationID, e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }

// TerminalFailure is an explicit failure reported by the authoritative source.
type TerminalFailure struct {
	OperationID string
	Stage       Stage
	Message     string
}

func (e *TerminalFailure) Error() string { return e.Message }

// ReconciliationExhausted is returned when the durable log could not resolve the operation
// status after all the attempts.
type ReconciliationExhausted struct {
	OperationID string
	Attempts    int
	Err         error
}

func (e *ReconciliationExhausted) Error() string {
	return fmt.Sprintf("connection lost: could not resolve status of operation %s after %d attempts", e.OperationID, e.Attempts)
}

func (e *ReconciliationExhausted) Unwrap() error { return e.Err }

// IsRecoverable returns true when the error can be absorbed by reconciliation.
func IsRecoverable(err error) bool {
	var nf *StreamNotFoundError
	var te *StreamTransportError
	return errors.As(err, &nf) || errors.As(err, &te)
}

package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/credential"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// Initiator submits the artifact to the server.
type Initiator interface {
	Initiate(ctx context.Context, cred model.Credential, r api.InitiateRequest) (string, error)
}

// OrchestratorConfig is the configuration for the Orchestrator.
type OrchestratorConfig struct {
	Credentials credential.Provider
	Initiator   Initiator
	Logger      log.Logger
}

func (c *OrchestratorConfig) defaults() error {
	if c.Credentials == nil {
		return fmt.Errorf("credential provider is required")
	}
	if c.Initiator == nil {
		return fmt.Errorf("initiator is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "upload.Orchestrator"})
	return nil
}

// Orchestrator acquires a credential and initiates the restore operation.
type Orchestrator struct {
	creds     credential.Provider
	initiator Initiator
	logger    log.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Orchestrator{
		creds:     cfg.Credentials,
		initiator: cfg.Initiator,
		logger:    cfg.Logger,
	}, nil
}

// Request is an artifact submission.
type Request struct {
	Artifact       io.Reader
	Filename       string
	Classification model.Classification
	DecryptionKey  string
}

// Submit initiates the restore and returns the operation ID. Every call gets a new credential
// and sends exactly one initiation request. All errors are *model.InitiationError.
func (o *Orchestrator) Submit(ctx context.Context, r Request) (string, error) {
	if r.Classification.Encrypted && r.DecryptionKey == "" {
		return "", &model.InitiationError{Message: "encrypted artifact without decryption key", Err: model.ErrNotValid}
	}

	cred, err := o.creds.Credential(ctx)
	if err != nil {
		return "", &model.InitiationError{Message: "could not acquire credential", Err: err}
	}

	logger := o.logger.WithValues(log.Kv{"filename": r.Filename, "kind": r.Classification.Kind})
	logger.Debugf("Submitting artifact")

	id, err := o.initiator.Initiate(ctx, cred, api.InitiateRequest{
		Artifact:       r.Artifact,
		Filename:       r.Filename,
		Classification: r.Classification,
		DecryptionKey:  r.DecryptionKey,
	})
	if err != nil {
		return "", &model.InitiationError{Message: "initiation request failed", Err: err}
	}
	if id == "" {
		return "", &model.InitiationError{Message: "server did not return an operation id"}
	}

	logger.WithValues(log.Kv{"operation-id": id}).Infof("Restore operation initiated")

	return id, nil
}

package credential

import (
	"context"
	"fmt"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// Provider returns a fresh credential for a single request. Implementations must not cache
// the anti forgery token, a rejected credential is never reused.
type Provider interface {
	Credential(ctx context.Context) (model.Credential, error)
}

// TokenRequester requests new anti forgery tokens from the server.
type TokenRequester interface {
	CSRFToken(ctx context.Context) (string, error)
}

// ServerProviderConfig is the configuration for the ServerProvider.
type ServerProviderConfig struct {
	Bearer    string
	Requester TokenRequester
	Logger    log.Logger
}

func (c *ServerProviderConfig) defaults() error {
	if c.Bearer == "" {
		return fmt.Errorf("bearer is required")
	}
	if c.Requester == nil {
		return fmt.Errorf("token requester is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "credential.ServerProvider"})
	return nil
}

// ServerProvider uses a static bearer token and asks the server for a new anti forgery token
// on every call.
type ServerProvider struct {
	bearer    string
	requester TokenRequester
	logger    log.Logger
}

func NewServerProvider(cfg ServerProviderConfig) (*ServerProvider, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ServerProvider{
		bearer:    cfg.Bearer,
		requester: cfg.Requester,
		logger:    cfg.Logger,
	}, nil
}

func (p *ServerProvider) Credential(ctx context.Context) (model.Credential, error) {
	token, err := p.requester.CSRFToken(ctx)
	if err != nil {
		return model.Credential{}, fmt.Errorf("could not request csrf token: %w", err)
	}
	if token == "" {
		return model.Credential{}, fmt.Errorf("empty csrf token: %w", model.ErrUnauthorized)
	}
	p.logger.Debugf("New csrf token acquired")

	return model.Credential{Bearer: p.bearer, CSRFToken: token}, nil
}

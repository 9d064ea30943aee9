package lib

import (
	"fmt"
	"net/http"
	"time"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/pkg/lib/log"
)

// Config configures the SDK client.
type Config struct {
	// ServerURL is the restorewatch server URL.
	// Default: http://127.0.0.1:8080.
	ServerURL string

	// Token is the static bearer token accepted by the server. Required.
	Token string

	// HTTPClient is the client used for every request, it must not have a global timeout
	// because the progress channel is long lived.
	// Default: a new http.Client.
	HTTPClient *http.Client

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// ReconcileBackoff is the base wait between event log fetches after the progress
	// channel is lost.
	// Default: 250ms.
	ReconcileBackoff time.Duration
}

func (c *Config) defaults() error {
	if c.ServerURL == "" {
		c.ServerURL = "http://127.0.0.1:8080"
	}

	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for restores.
//
// Create a Client with [New]. A Client is safe for concurrent use.
type Client struct {
	api              *api.Client
	logger           log.Logger
	reconcileBackoff time.Duration
}

// New creates a new SDK client for a restorewatch server.
func New(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c, err := api.NewClient(api.ClientConfig{
		BaseURL:    cfg.ServerURL,
		Bearer:     cfg.Token,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create api client: %w", err)
	}

	return &Client{
		api:              c,
		logger:           cfg.Logger,
		reconcileBackoff: cfg.ReconcileBackoff,
	}, nil
}

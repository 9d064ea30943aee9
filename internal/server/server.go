package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/app/list"
	"github.com/slok/restorewatch/internal/artifactstore"
	"github.com/slok/restorewatch/internal/emitter"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/runner"
	"github.com/slok/restorewatch/internal/storage"
)

// JobRunner executes the submitted restore jobs.
type JobRunner interface {
	Submit(job runner.Job) error
	Cancel(operationID string) bool
}

// ServerConfig is the configuration for the HTTP API server.
type ServerConfig struct {
	Repository storage.Repository
	Hub        *emitter.Hub
	Runner     JobRunner
	Store      artifactstore.Store
	// Tokens are the accepted static bearer tokens.
	Tokens []string
	// CSRFTokenTTL is the lifetime of the issued anti-forgery tokens.
	CSRFTokenTTL time.Duration
	// PingInterval is the keep alive interval of the progress channels.
	PingInterval time.Duration
	// MaxUploadSize is the maximum accepted request size of an initiation request.
	MaxUploadSize int64
	Logger        log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Hub == nil {
		return fmt.Errorf("hub is required")
	}
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one bearer token is required")
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 4 << 30
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.Server"})
	return nil
}

// Server is the restore HTTP API.
type Server struct {
	repo          storage.Repository
	hub           *emitter.Hub
	runner        JobRunner
	store         artifactstore.Store
	lister        *list.Service
	csrf          *CSRFStore
	tokens        []string
	pingInterval  time.Duration
	maxUploadSize int64
	logger        log.Logger
	router        *mux.Router
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lister, err := list.NewService(list.ServiceConfig{Repository: cfg.Repository, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create list service: %w", err)
	}

	s := &Server{
		repo:          cfg.Repository,
		hub:           cfg.Hub,
		runner:        cfg.Runner,
		store:         cfg.Store,
		lister:        lister,
		csrf:          NewCSRFStore(cfg.CSRFTokenTTL),
		tokens:        cfg.Tokens,
		pingInterval:  cfg.PingInterval,
		maxUploadSize: cfg.MaxUploadSize,
		logger:        cfg.Logger,
	}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/csrf-token", s.handleCSRFToken).Methods(http.MethodGet)
	v1.HandleFunc("/restores", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/restores", s.handleInitiate).Methods(http.MethodPost)
	v1.HandleFunc("/restores/{id}/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/restores/{id}/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/restores/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ctxBearerKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !s.validBearer(bearer) {
			s.logger.Debugf("Rejected unauthenticated request to %s", r.URL.Path)
			sendError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxBearerKey{}, bearer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) validBearer(bearer string) bool {
	if bearer == "" {
		return false
	}
	valid := false
	for _, t := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(bearer)) == 1 {
			valid = true
		}
	}
	return valid
}

func bearerFromContext(ctx context.Context) string {
	b, _ := ctx.Value(ctxBearerKey{}).(string)
	return b
}

func sendJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response[T]{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response[struct{}]{Success: false, Error: msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotValid):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, runner.ErrQueueFull):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

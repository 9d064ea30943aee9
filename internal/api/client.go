package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// ClientConfig is the configuration for the Client.
type ClientConfig struct {
	// BaseURL is the restore server URL, e.g. http://127.0.0.1:8080.
	BaseURL string
	// Bearer is the static token used on every request.
	Bearer string
	// HTTPClient must not have a global timeout, the progress channel is long lived.
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Client"})

	return nil
}

// Client is the HTTP client of the restore server API.
type Client struct {
	baseURL string
	bearer  string
	hc      *http.Client
	logger  log.Logger
}

// NewClient returns a new API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL: cfg.BaseURL,
		bearer:  cfg.Bearer,
		hc:      cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

// Bearer returns the static bearer token of the client.
func (c *Client) Bearer() string { return c.bearer }

// CSRFToken requests a new anti forgery token.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/csrf-token", nil)
	if err != nil {
		return "", err
	}

	var resp Response[CSRFToken]
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("could not get csrf token: %w", err)
	}

	return resp.Data.Token, nil
}

// InitiateRequest is the restore initiation request.
type InitiateRequest struct {
	Artifact       io.Reader
	Filename       string
	Classification model.Classification
	DecryptionKey  string
}

// Initiate streams the artifact to the server and returns the operation ID. The request is
// sent once, it's never retried.
func (c *Client) Initiate(ctx context.Context, cred model.Credential, r InitiateRequest) (string, error) {
	if r.Artifact == nil {
		return "", fmt.Errorf("artifact is required: %w", model.ErrNotValid)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeInitiateForm(mw, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/restores", pr)
	if err != nil {
		_ = pr.Close()
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+cred.Bearer)
	req.Header.Set(HeaderCSRFToken, cred.CSRFToken)

	var resp Response[Initiated]
	if err := c.doJSON(req, &resp); err != nil {
		return "", err
	}

	return resp.Data.OperationID, nil
}

func writeInitiateForm(mw *multipart.Writer, r InitiateRequest) error {
	fields := [][2]string{
		{FieldOriginalFilename, r.Filename},
		{FieldKind, string(r.Classification.Kind)},
		{FieldEncrypted, strconv.FormatBool(r.Classification.Encrypted)},
	}
	if r.DecryptionKey != "" {
		fields = append(fields, [2]string{FieldDecryptionKey, r.DecryptionKey})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("could not write %s field: %w", f[0], err)
		}
	}

	part, err := mw.CreateFormFile(FieldArtifact, r.Filename)
	if err != nil {
		return fmt.Errorf("could not create artifact part: %w", err)
	}
	if _, err := io.Copy(part, r.Artifact); err != nil {
		return fmt.Errorf("could not stream artifact: %w", err)
	}

	return mw.Close()
}

// History returns the durable event log of an operation ordered by sequence. Entries with
// unknown stages are dropped.
func (c *Client) History(ctx context.Context, operationID string) ([]model.ProgressEvent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/restores/"+url.PathEscape(operationID)+"/history", nil)
	if err != nil {
		return nil, err
	}

	var resp Response[[]Event]
	if err := c.doJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("could not get history of %s: %w", operationID, err)
	}

	events := make([]model.ProgressEvent, 0, len(resp.Data))
	for _, e := range resp.Data {
		me, err := e.ToModel()
		if err != nil {
			c.logger.Warningf("Ignoring history entry: %s", err)
			continue
		}
		events = append(events, me)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Sequence < events[j].Sequence })

	return events, nil
}

// Cancel requests the cancellation of an operation.
func (c *Client) Cancel(ctx context.Context, operationID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/restores/"+url.PathEscape(operationID)+"/cancel", nil)
	if err != nil {
		return err
	}

	var resp Response[json.RawMessage]
	if err := c.doJSON(req, &resp); err != nil {
		return fmt.Errorf("could not cancel %s: %w", operationID, err)
	}

	return nil
}

// ListFilter filters the listed operations, empty fields don't filter.
type ListFilter struct {
	Status model.OperationStatus
	Kind   model.Kind
}

// List returns the known operations, newest first.
func (c *Client) List(ctx context.Context, f ListFilter) ([]model.OperationSummary, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Kind != "" {
		q.Set("kind", string(f.Kind))
	}
	path := "/api/v1/restores"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp Response[[]Operation]
	if err := c.doJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("could not list operations: %w", err)
	}

	ops := make([]model.OperationSummary, 0, len(resp.Data))
	for _, o := range resp.Data {
		s, err := o.ToModel()
		if err != nil {
			c.logger.Warningf("Ignoring operation %s: %s", o.ID, err)
			continue
		}
		ops = append(ops, s)
	}

	return ops, nil
}

// Subscribe opens the progress channel of an operation.
func (c *Client) Subscribe(ctx context.Context, operationID string) (*Subscription, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/restores/"+url.PathEscape(operationID)+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to %s: %w", operationID, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("could not subscribe to %s: %w", operationID, statusError(resp))
	}

	return &Subscription{body: resp.Body, scanner: NewSSEScanner(resp.Body)}, nil
}

// MessageKind is the kind of a progress channel message.
type MessageKind int

const (
	MessageProgress MessageKind = iota
	MessageCompleted
	MessageError
)

// Message is a decoded progress channel message.
type Message struct {
	Kind    MessageKind
	Event   model.ProgressEvent
	Details map[string]string
	Error   string
}

// Subscription is an open progress channel.
type Subscription struct {
	body    io.ReadCloser
	scanner *SSEScanner
}

// Next returns the next message. It returns io.EOF when the server closed the channel.
// Malformed envelopes return an error wrapping model.ErrNotValid, the channel is still usable.
func (s *Subscription) Next() (Message, error) {
	if !s.scanner.Next() {
		if err := s.scanner.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, io.EOF
	}

	return DecodeEnvelope([]byte(s.scanner.Event().Data))
}

func (s *Subscription) Close() error { return s.body.Close() }

// DecodeEnvelope decodes a progress channel envelope.
func DecodeEnvelope(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("could not decode envelope: %w: %w", model.ErrNotValid, err)
	}

	switch {
	case env.Status == StatusCompleted:
		return Message{Kind: MessageCompleted, Details: env.Details}, nil
	case env.Stage == "" && env.Error != "":
		return Message{Kind: MessageError, Error: env.Error}, nil
	}

	ev, err := env.Event.ToModel()
	if err != nil {
		return Message{}, err
	}

	return Message{Kind: MessageProgress, Event: ev}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return req, nil
}

// doJSON executes the request and decodes the response envelope in out. out must be a
// pointer to a Response.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	type successer interface{ result() (bool, string) }
	if s, ok := out.(successer); ok {
		if ok, msg := s.result(); !ok {
			return fmt.Errorf("server rejected request: %s", msg)
		}
	}

	return nil
}

func (r *Response[T]) result() (bool, string) { return r.Success, rejection(r.Error, r.Message) }

// rejection returns the human readable rejection text of a response body.
func rejection(errText, message string) string {
	if errText != "" {
		return errText
	}
	return message
}

// statusError maps a non successful HTTP response to an error.
func statusError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)
	msg := rejection(body.Error, body.Message)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = model.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = model.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = model.ErrNotValid
	case http.StatusConflict:
		sentinel = model.ErrAlreadyExists
	}
	if sentinel == nil {
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	return fmt.Errorf("%w: %w", &StatusError{Code: resp.StatusCode, Message: msg}, sentinel)
}

// StatusError is a non successful HTTP response of the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded %d: %s", e.Code, e.Message)
}

// IsStatus returns true when err is a StatusError with the code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

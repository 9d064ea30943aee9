package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/model"
)

func newClient(t *testing.T, h http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := api.NewClient(api.ClientConfig{BaseURL: srv.URL, Bearer: "secret"})
	require.NoError(t, err)
	return c
}

func TestClientInitiate(t *testing.T) {
	tests := map[string]struct {
		handler http.HandlerFunc
		req     api.InitiateRequest
		expID   string
		expErr  error
	}{
		"A successful initiation should send the form and return the operation id.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer b1" || r.Header.Get(api.HeaderCSRFToken) != "c1" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				f, h, err := r.FormFile(api.FieldArtifact)
				if err != nil {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				data, _ := io.ReadAll(f)
				if string(data) != "SELECT 1;" || h.Filename != "db.sql.enc" ||
					r.FormValue(api.FieldKind) != "database" || r.FormValue(api.FieldEncrypted) != "true" ||
					r.FormValue(api.FieldDecryptionKey) != "k" || r.FormValue(api.FieldOriginalFilename) != "db.sql.enc" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				_, _ = fmt.Fprint(w, `{"success":true,"data":{"operationId":"op1"}}`)
			},
			req: api.InitiateRequest{
				Artifact:       strings.NewReader("SELECT 1;"),
				Filename:       "db.sql.enc",
				Classification: model.Classification{Kind: model.KindDatabase, Encrypted: true},
				DecryptionKey:  "k",
			},
			expID: "op1",
		},
		"An auth rejection should return unauthorized.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(http.StatusForbidden)
				_, _ = fmt.Fprint(w, `{"success":false,"error":"invalid csrf token"}`)
			},
			req:    api.InitiateRequest{Artifact: strings.NewReader("x"), Filename: "a.zip"},
			expErr: model.ErrUnauthorized,
		},
		"A rejected request should fail.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				_, _ = fmt.Fprint(w, `{"success":false,"error":"storage unavailable"}`)
			},
			req:    api.InitiateRequest{Artifact: strings.NewReader("x"), Filename: "a.zip"},
			expErr: fmt.Errorf("server rejected request: storage unavailable"),
		},
		"A rejected request with only a message should fail with that message.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				_, _ = fmt.Fprint(w, `{"success":false,"message":"disk quota exceeded"}`)
			},
			req:    api.InitiateRequest{Artifact: strings.NewReader("x"), Filename: "a.zip"},
			expErr: fmt.Errorf("server rejected request: disk quota exceeded"),
		},
		"A failed status with only a message should fail with that message.": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = fmt.Fprint(w, `{"success":false,"message":"disk quota exceeded"}`)
			},
			req:    api.InitiateRequest{Artifact: strings.NewReader("x"), Filename: "a.zip"},
			expErr: fmt.Errorf("server responded 500: disk quota exceeded"),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			c := newClient(t, test.handler)
			id, err := c.Initiate(context.TODO(), model.Credential{Bearer: "b1", CSRFToken: "c1"}, test.req)
			if test.expErr != nil {
				require.Error(t, err)
				if test.expErr == model.ErrUnauthorized {
					assert.ErrorIs(t, err, model.ErrUnauthorized)
				} else {
					assert.Equal(t, test.expErr.Error(), err.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expID, id)
		})
	}
}

func TestClientHistory(t *testing.T) {
	ts := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/restores/op1/history" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(api.Response[[]api.Event]{
			Success: true,
			Data: []api.Event{
				{OperationID: "op1", Sequence: 2, Stage: "validating", Progress: 10, Timestamp: ts},
				{OperationID: "op1", Sequence: 1, Stage: "uploaded", Timestamp: ts},
				{OperationID: "op1", Sequence: 3, Stage: "teleporting", Timestamp: ts},
			},
		})
	}))

	got, err := c.History(context.TODO(), "op1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.StageUploaded, got[0].Stage)
	assert.Equal(t, model.StageValidating, got[1].Stage)

	_, err = c.History(context.TODO(), "op2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClientSubscribe(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, err := api.NewSSEWriter(w)
		if err != nil {
			return
		}
		_ = sw.Write(api.SSEEventProgress, "1", api.Envelope{Event: api.Event{OperationID: "op1", Sequence: 1, Stage: "uploaded"}})
		_ = sw.Write(api.SSEEventProgress, "2", api.Envelope{Event: api.Event{OperationID: "op1", Sequence: 2, Stage: "bogus"}})
		_ = sw.Write(api.SSEEventCompleted, "", api.Envelope{Status: api.StatusCompleted, Event: api.Event{Details: map[string]string{"tables": "3"}}})
	}))

	sub, err := c.Subscribe(context.TODO(), "op1")
	require.NoError(t, err)
	defer sub.Close()

	m, err := sub.Next()
	require.NoError(t, err)
	assert.Equal(t, api.MessageProgress, m.Kind)
	assert.Equal(t, model.StageUploaded, m.Event.Stage)

	_, err = sub.Next()
	assert.ErrorIs(t, err, model.ErrNotValid)

	m, err = sub.Next()
	require.NoError(t, err)
	assert.Equal(t, api.MessageCompleted, m.Kind)
	assert.Equal(t, map[string]string{"tables": "3"}, m.Details)

	_, err = sub.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeEnvelope(t *testing.T) {
	tests := map[string]struct {
		data   string
		expMsg api.Message
		expErr bool
	}{
		"A stage envelope should be a progress message.": {
			data:   `{"operationId":"op1","sequence":4,"stage":"extracting","progress":40,"message":"extracting"}`,
			expMsg: api.Message{Kind: api.MessageProgress, Event: model.ProgressEvent{OperationID: "op1", Sequence: 4, Stage: model.StageExtracting, Progress: 40, Message: "extracting"}},
		},
		"A completion signal should be a completed message.": {
			data:   `{"status":"completed","details":{"files":"10"}}`,
			expMsg: api.Message{Kind: api.MessageCompleted, Details: map[string]string{"files": "10"}},
		},
		"An error signal should be an error message.": {
			data:   `{"error":"operation not found"}`,
			expMsg: api.Message{Kind: api.MessageError, Error: "operation not found"},
		},
		"An unknown stage should be rejected.": {
			data:   `{"stage":"restore_done"}`,
			expErr: true,
		},
		"Out of range progress should be rejected.": {
			data:   `{"stage":"extracting","progress":140}`,
			expErr: true,
		},
		"Invalid JSON should be rejected.": {
			data:   `{`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := api.DecodeEnvelope([]byte(test.data))
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expMsg, got)
		})
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/app/list"
	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/runner"
)

const maxFieldSize = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := s.csrf.Issue(bearerFromContext(r.Context()))
	sendJSON(w, http.StatusOK, api.CSRFToken{Token: token})
}

type initiateForm struct {
	filename      string
	kind          string
	encrypted     string
	decryptionKey string
	artifactRef   string
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.csrf.Consume(bearerFromContext(ctx), r.Header.Get(api.HeaderCSRFToken)) {
		sendError(w, http.StatusForbidden, "invalid or missing anti-forgery token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	mr, err := r.MultipartReader()
	if err != nil {
		sendError(w, http.StatusBadRequest, "multipart body is required")
		return
	}

	opID := ulid.Make().String()
	logger := s.logger.WithValues(log.Kv{"operation-id": opID})

	form, err := s.readInitiateForm(ctx, opID, mr)
	if err != nil {
		s.discardArtifact(form.artifactRef, logger)
		logger.Warningf("Rejected initiation: %s", err)
		sendError(w, errorStatus(err), err.Error())
		return
	}

	op, err := newOperation(opID, form)
	if err != nil {
		s.discardArtifact(form.artifactRef, logger)
		sendError(w, errorStatus(err), err.Error())
		return
	}

	if err := s.repo.CreateOperation(ctx, op); err != nil {
		s.discardArtifact(form.artifactRef, logger)
		logger.Errorf("Could not create operation: %s", err)
		sendError(w, errorStatus(err), "could not create operation")
		return
	}

	if _, err := s.hub.Emit(ctx, model.ProgressEvent{
		OperationID: op.ID,
		Stage:       model.StageUploaded,
		Message:     "Artifact uploaded",
		Details:     map[string]string{"filename": op.Filename, "kind": string(op.Kind)},
	}); err != nil {
		logger.Errorf("Could not emit uploaded event: %s", err)
		s.abandonOperation(context.WithoutCancel(ctx), op, err, logger)
		sendError(w, http.StatusInternalServerError, "could not record operation progress")
		return
	}

	if err := s.runner.Submit(runner.Job{Operation: op, DecryptionKey: form.decryptionKey}); err != nil {
		logger.Errorf("Could not submit restore job: %s", err)
		_, _ = s.hub.Emit(context.WithoutCancel(ctx), model.ProgressEvent{
			OperationID: op.ID,
			Stage:       model.StageRestoreFailed,
			Message:     "Restore failed",
			Error:       err.Error(),
		})
		sendError(w, errorStatus(err), err.Error())
		return
	}

	logger.Infof("Restore operation initiated for %s (%s, encrypted: %t)", op.Filename, op.Kind, op.Encrypted)
	sendJSON(w, http.StatusOK, api.Initiated{OperationID: op.ID})
}

// readInitiateForm streams the multipart body, storing the artifact part as soon as it arrives.
// The returned form carries the artifact reference even on error so it can be discarded.
func (s *Server) readInitiateForm(ctx context.Context, opID string, mr *multipart.Reader) (initiateForm, error) {
	var form initiateForm
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return form, fmt.Errorf("could not read multipart body: %w: %w", model.ErrNotValid, err)
		}

		name := part.FormName()
		if name == api.FieldArtifact {
			if form.artifactRef != "" {
				part.Close()
				return form, fmt.Errorf("only one artifact is accepted: %w", model.ErrNotValid)
			}
			filename := form.filename
			if filename == "" {
				filename = part.FileName()
			}
			if filename == "" {
				part.Close()
				return form, fmt.Errorf("artifact filename is required: %w", model.ErrNotValid)
			}
			form.filename = filename
			ref, err := s.store.Put(ctx, opID, filename, part)
			part.Close()
			if err != nil {
				return form, fmt.Errorf("could not store artifact: %w", err)
			}
			form.artifactRef = ref
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
		part.Close()
		if err != nil {
			return form, fmt.Errorf("could not read %s field: %w: %w", name, model.ErrNotValid, err)
		}

		switch name {
		case api.FieldOriginalFilename:
			if form.artifactRef == "" {
				form.filename = string(value)
			}
		case api.FieldKind:
			form.kind = string(value)
		case api.FieldEncrypted:
			form.encrypted = string(value)
		case api.FieldDecryptionKey:
			form.decryptionKey = string(value)
		}
	}

	if form.artifactRef == "" {
		return form, fmt.Errorf("artifact is required: %w", model.ErrNotValid)
	}

	return form, nil
}

// newOperation builds the operation from the form hints, missing hints are taken from the filename.
func newOperation(id string, form initiateForm) (model.Operation, error) {
	guess := artifact.Inspect(nil, form.filename)

	kind := guess.Kind
	if form.kind != "" {
		k, err := model.ParseKind(form.kind)
		if err != nil {
			return model.Operation{}, err
		}
		kind = k
	}

	encrypted := guess.Encrypted
	if form.encrypted != "" {
		e, err := strconv.ParseBool(form.encrypted)
		if err != nil {
			return model.Operation{}, fmt.Errorf("invalid encrypted value %q: %w", form.encrypted, model.ErrNotValid)
		}
		encrypted = e
	}

	return model.Operation{
		ID:          id,
		Kind:        kind,
		Encrypted:   encrypted,
		Filename:    form.filename,
		ArtifactRef: form.artifactRef,
		StartedAt:   time.Now().UTC(),
	}, nil
}

// abandonOperation releases an operation that will never get a job: its artifact is deleted
// and a failed event is recorded when the log accepts it.
func (s *Server) abandonOperation(ctx context.Context, op model.Operation, cause error, logger log.Logger) {
	s.discardArtifact(op.ArtifactRef, logger)
	op.ArtifactRef = ""
	if err := s.repo.UpdateOperation(ctx, op); err != nil {
		logger.Warningf("Could not clear artifact of abandoned operation: %s", err)
	}

	if _, err := s.hub.Emit(ctx, model.ProgressEvent{
		OperationID: op.ID,
		Stage:       model.StageRestoreFailed,
		Message:     "Restore failed",
		Error:       cause.Error(),
	}); err != nil {
		logger.Warningf("Could not record failure of abandoned operation: %s", err)
	}
}

func (s *Server) discardArtifact(ref string, logger log.Logger) {
	if ref == "" {
		return
	}
	if err := s.store.Delete(context.Background(), ref); err != nil {
		logger.Warningf("Could not delete rejected artifact: %s", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	logger := s.logger.WithValues(log.Kv{"operation-id": id})

	sub, subErr := s.hub.Subscribe(ctx, id)
	if subErr != nil && !errors.Is(subErr, model.ErrNotFound) {
		logger.Errorf("Could not subscribe: %s", subErr)
		sendError(w, http.StatusInternalServerError, "could not subscribe to operation")
		return
	}

	sse, err := api.NewSSEWriter(w)
	if err != nil {
		if sub != nil {
			sub.Close()
		}
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Unknown operations get an error signal, the client decides with the durable log.
	if subErr != nil {
		_ = sse.Write(api.SSEEventError, "", api.Envelope{Event: api.Event{Error: "operation not found"}})
		return
	}
	defer sub.Close()

	logger.Debugf("Progress channel opened")
	for {
		nextCtx, cancel := context.WithTimeout(ctx, s.pingInterval)
		ev, err := sub.Next(nextCtx)
		cancel()

		switch {
		case errors.Is(err, io.EOF):
			logger.Debugf("Progress channel closed")
			return
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			if err := sse.Ping(); err != nil {
				return
			}
			continue
		case err != nil:
			return
		}

		seq := strconv.Itoa(ev.Sequence)
		if err := sse.Write(api.SSEEventProgress, seq, api.Envelope{Event: api.FromModelEvent(ev)}); err != nil {
			logger.Debugf("Could not write event: %s", err)
			return
		}

		if ev.Stage.IsCompleted() {
			_ = sse.Write(api.SSEEventCompleted, seq, api.Envelope{Status: api.StatusCompleted, Event: api.Event{Details: ev.Details}})
			return
		}
		if ev.Stage.IsFailed() {
			return
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if _, err := s.repo.GetOperation(ctx, id); err != nil {
		sendError(w, errorStatus(err), err.Error())
		return
	}

	evs, err := s.repo.ListEvents(ctx, id, 0)
	if err != nil {
		s.logger.Errorf("Could not list events of %s: %s", id, err)
		sendError(w, http.StatusInternalServerError, "could not list events")
		return
	}

	out := make([]api.Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, api.FromModelEvent(ev))
	}
	sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.repo.GetOperation(r.Context(), id); err != nil {
		sendError(w, errorStatus(err), err.Error())
		return
	}

	if s.runner.Cancel(id) {
		s.logger.Infof("Cancelling operation %s", id)
	} else {
		s.logger.Debugf("Operation %s is not running, nothing to cancel", id)
	}

	sendJSON(w, http.StatusAccepted, struct{}{})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req list.Request
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st, err := model.ParseOperationStatus(v)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.StatusFilter = &st
	}
	if v := q.Get("kind"); v != "" {
		k, err := model.ParseKind(strings.ToLower(v))
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.KindFilter = &k
	}

	ops, err := s.lister.Run(r.Context(), req)
	if err != nil {
		s.logger.Errorf("Could not list operations: %s", err)
		sendError(w, http.StatusInternalServerError, "could not list operations")
		return
	}

	out := make([]api.Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, api.FromModelSummary(op))
	}
	sendJSON(w, http.StatusOK, out)
}

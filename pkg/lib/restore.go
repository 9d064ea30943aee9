package lib

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/restorewatch/internal/app/restore"
	"github.com/slok/restorewatch/internal/artifact"
	"github.com/slok/restorewatch/internal/credential"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/reconcile"
	"github.com/slok/restorewatch/internal/stream"
	"github.com/slok/restorewatch/internal/upload"
)

// Restore uploads an artifact and follows the restore until it reaches a terminal stage.
//
// When the server restore fails the result is returned together with an error matching
// [ErrOperationFailed], the result view holds the failure message.
func (c *Client) Restore(ctx context.Context, opts RestoreOpts) (*RestoreResult, error) {
	r, filename, closeFn, err := opts.artifact()
	if err != nil {
		return nil, mapError(err)
	}
	defer closeFn()

	svc, err := c.newRestoreService(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	req := restore.Request{
		Artifact:      r,
		Filename:      filename,
		DecryptionKey: opts.DecryptionKey,
	}
	if opts.OnProgress != nil {
		req.OnUpdate = func(v model.ClientView) { opts.OnProgress(fromInternalView(v)) }
	}

	resp, err := svc.Run(ctx, req)
	if resp == nil {
		return nil, mapError(err)
	}

	return &RestoreResult{
		Classification: fromInternalClassification(resp.Classification),
		View:           fromInternalView(resp.View),
	}, mapError(err)
}

func (c *Client) newRestoreService(opts RestoreOpts) (*restore.Service, error) {
	creds, err := credential.NewServerProvider(credential.ServerProviderConfig{
		Bearer:    c.api.Bearer(),
		Requester: c.api,
		Logger:    c.logger,
	})
	if err != nil {
		return nil, err
	}

	orch, err := upload.NewOrchestrator(upload.OrchestratorConfig{
		Credentials: creds,
		Initiator:   c.api,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}

	watcher, err := stream.NewWatcher(stream.WatcherConfig{
		Subscriber: stream.NewAPISubscriber(c.api),
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}

	rec, err := reconcile.NewReconciler(reconcile.ReconcilerConfig{
		History: c.api,
		Backoff: c.reconcileBackoff,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, err
	}

	cfg := restore.ServiceConfig{
		Uploader:       orch,
		Watcher:        watcher,
		Reconciler:     rec,
		Canceler:       c.api,
		KeyWaitTimeout: opts.KeyWaitTimeout,
		Logger:         c.logger,
	}
	if opts.KeyFunc != nil {
		cfg.KeyProvider = keyFunc(opts.KeyFunc)
	}

	return restore.NewService(cfg)
}

type keyFunc func(ctx context.Context, filename string) (string, error)

func (f keyFunc) Key(ctx context.Context, filename string) (string, error) { return f(ctx, filename) }

// artifact returns the artifact reader, its filename and the function that releases it.
func (o RestoreOpts) artifact() (io.Reader, string, func(), error) {
	if o.Artifact != nil {
		if o.Filename == "" {
			return nil, "", nil, fmt.Errorf("filename is required with an artifact reader: %w", model.ErrNotValid)
		}
		return o.Artifact, o.Filename, func() {}, nil
	}

	if o.Path == "" {
		return nil, "", nil, fmt.Errorf("artifact path or reader is required: %w", model.ErrNotValid)
	}

	f, err := os.Open(o.Path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("could not open artifact: %w", err)
	}

	filename := o.Filename
	if filename == "" {
		filename = filepath.Base(o.Path)
	}

	return f, filename, func() { _ = f.Close() }, nil
}

// Inspect classifies a local artifact from its header and filename, without contacting any
// server. When the header can't be read the filename alone is used.
func Inspect(path string) (Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return Classification{}, fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	cls, _ := artifact.InspectReader(bufio.NewReader(f), filepath.Base(path))
	return fromInternalClassification(cls), nil
}

// Seal encrypts src into dst with the key, in the format the server decrypts.
func Seal(dst io.Writer, src io.Reader, key string) error {
	if err := artifact.Seal(dst, src, key); err != nil {
		return mapError(fmt.Errorf("could not seal artifact: %w", err))
	}
	return nil
}

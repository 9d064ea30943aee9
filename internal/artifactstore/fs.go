package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// FSStoreConfig is the configuration for the FSStore.
type FSStoreConfig struct {
	Dir    string
	Logger log.Logger
}

func (c *FSStoreConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifactstore.FSStore"})
	return nil
}

// FSStore stores artifacts on the local filesystem, one directory per operation.
type FSStore struct {
	dir    string
	logger log.Logger
}

func NewFSStore(cfg FSStoreConfig) (*FSStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("could not create artifacts directory: %w", err)
	}

	return &FSStore{dir: cfg.Dir, logger: cfg.Logger}, nil
}

func (s *FSStore) Put(ctx context.Context, operationID, filename string, r io.Reader) (string, error) {
	ref, err := refFor(operationID, filename)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("could not create operation directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("could not write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("could not move artifact: %w", err)
	}

	s.logger.Debugf("Stored artifact %s (%d bytes)", ref, n)
	return ref, nil
}

func (s *FSStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	p, err := s.pathFor(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact %s: %w", ref, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not open artifact: %w", err)
	}

	return f, nil
}

func (s *FSStore) Delete(ctx context.Context, ref string) error {
	p, err := s.pathFor(ref)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Dir(p)); err != nil {
		return fmt.Errorf("could not delete artifact: %w", err)
	}

	s.logger.Debugf("Deleted artifact %s", ref)
	return nil
}

func (s *FSStore) pathFor(ref string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(ref)) || path.Dir(ref) == "." {
		return "", fmt.Errorf("invalid artifact reference %q: %w", ref, model.ErrNotValid)
	}
	return filepath.Join(s.dir, filepath.FromSlash(ref)), nil
}

// refFor returns the reference of an operation artifact, the filename is reduced to its base.
func refFor(operationID, filename string) (string, error) {
	base := path.Base(filepath.ToSlash(filename))
	if operationID == "" || !filepath.IsLocal(operationID) || base == "." || base == "/" || base == ".." {
		return "", fmt.Errorf("invalid artifact name %q for operation %q: %w", filename, operationID, model.ErrNotValid)
	}
	return path.Join(operationID, base), nil
}

// ctxReader stops reading when the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

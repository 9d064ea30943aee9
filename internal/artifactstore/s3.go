package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/model"
)

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3StoreConfig is the configuration for the S3Store.
type S3StoreConfig struct {
	Bucket string
	Prefix string
	// Endpoint is optional, used for S3 compatible services.
	Endpoint string
	// Region is optional, by default it's resolved by the AWS default config chain.
	Region string
	// Client is optional, by default it's created from the AWS default config chain.
	Client S3API
	// SpoolDir is where uploads are buffered before sending them, S3 needs a seekable body.
	SpoolDir string
	Logger   log.Logger
}

func (c *S3StoreConfig) defaults(ctx context.Context) error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if c.Client == nil {
		var opts []func(*config.LoadOptions) error
		if c.Region != "" {
			opts = append(opts, config.WithRegion(c.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("could not load aws config: %w", err)
		}
		c.Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if c.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.Endpoint)
				o.UsePathStyle = true
			}
		})
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifactstore.S3Store"})
	return nil
}

// S3Store stores artifacts on an S3 bucket.
type S3Store struct {
	client   S3API
	bucket   string
	prefix   string
	spoolDir string
	logger   log.Logger
}

func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := cfg.defaults(ctx); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &S3Store{
		client:   cfg.Client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		spoolDir: cfg.SpoolDir,
		logger:   cfg.Logger,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, operationID, filename string, r io.Reader) (string, error) {
	ref, err := refFor(operationID, filename)
	if err != nil {
		return "", err
	}

	spool, err := os.CreateTemp(s.spoolDir, "restorewatch-s3-*")
	if err != nil {
		return "", fmt.Errorf("could not create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	n, err := io.Copy(spool, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", fmt.Errorf("could not spool artifact: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("could not rewind spool file: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.keyFor(ref)),
		Body:          spool,
		ContentLength: aws.Int64(n),
		ACL:           types.ObjectCannedACLPrivate,
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"operation_id": operationID,
			"file_name":    filename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("could not put artifact: %w", err)
	}

	s.logger.Debugf("Stored artifact %s (%d bytes) on bucket %s", ref, n, s.bucket)
	return ref, nil
}

func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(ref)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("artifact %s: %w", ref, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get artifact: %w", err)
	}

	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyFor(ref)),
	})
	if err != nil {
		return fmt.Errorf("could not delete artifact: %w", err)
	}

	s.logger.Debugf("Deleted artifact %s from bucket %s", ref, s.bucket)
	return nil
}

func (s *S3Store) keyFor(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return path.Join(s.prefix, ref)
}

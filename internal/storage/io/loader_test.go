package io

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/model"
)

func TestSettingsYAMLRepository_GetSettings(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expCfg model.ServerSettings
		expErr bool
		errMsg string
	}{
		"Full settings with S3 storage should load successfully": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`listen_address: 0.0.0.0:9090
tokens: [abc, def]
workers: 4
queue_size: 32
retention: 72h
janitor:
  schedule: "0 3 * * *"
storage:
  s3:
    bucket: school-backups
    prefix: restores
    region: eu-west-1
    endpoint: http://minio:9000
`),
				},
			},
			path: "server.yaml",
			expCfg: model.ServerSettings{
				ListenAddress:   "0.0.0.0:9090",
				Tokens:          []string{"abc", "def"},
				Workers:         4,
				QueueSize:       32,
				Retention:       72 * time.Hour,
				JanitorSchedule: "0 3 * * *",
				S3: &model.S3Settings{
					Bucket:   "school-backups",
					Prefix:   "restores",
					Region:   "eu-west-1",
					Endpoint: "http://minio:9000",
				},
			},
		},
		"Filesystem storage should not set S3 settings": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`tokens: [abc]
storage:
  filesystem: {}
`),
				},
			},
			path:   "server.yaml",
			expCfg: model.ServerSettings{Tokens: []string{"abc"}},
		},
		"Empty settings should load successfully": {
			fs: fstest.MapFS{
				"empty.yaml": &fstest.MapFile{
					Data: []byte(`---
`),
				},
			},
			path:   "empty.yaml",
			expCfg: model.ServerSettings{},
		},
		"Both storages should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`storage:
  filesystem: {}
  s3:
    bucket: b
`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "only one storage",
		},
		"S3 storage without bucket should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`storage:
  s3:
    prefix: p
`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "bucket is required",
		},
		"Invalid retention should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`retention: forever
`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "invalid retention",
		},
		"Negative workers should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`workers: -1
`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "workers can't be negative",
		},
		"Empty token should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`tokens: ["abc", ""]
`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "token 1 is empty",
		},
		"Invalid YAML should fail": {
			fs: fstest.MapFS{
				"server.yaml": &fstest.MapFile{
					Data: []byte(`tokens: [abc`),
				},
			},
			path:   "server.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
		"Missing file should fail": {
			fs:     fstest.MapFS{},
			path:   "missing.yaml",
			expErr: true,
			errMsg: "reading settings file",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewSettingsYAMLRepository(tc.fs)
			cfg, err := repo.GetSettings(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expCfg, cfg)
		})
	}
}

func TestSettingsYAMLRepository_GetSettings_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"server.yaml": &fstest.MapFile{Data: []byte("workers: 1\n")},
	}
	repo := NewSettingsYAMLRepository(fs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetSettings(ctx, "server.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

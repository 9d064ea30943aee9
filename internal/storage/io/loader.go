package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/restorewatch/internal/model"
)

// SettingsYAMLRepository loads the server settings from YAML files.
type SettingsYAMLRepository struct {
	fs fs.FS
}

// NewSettingsYAMLRepository creates a new YAML settings repository.
func NewSettingsYAMLRepository(filesystem fs.FS) *SettingsYAMLRepository {
	return &SettingsYAMLRepository{fs: filesystem}
}

// GetSettings loads the server settings from a YAML file and returns a validated domain model.
func (r *SettingsYAMLRepository) GetSettings(ctx context.Context, path string) (model.ServerSettings, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.ServerSettings{}, fmt.Errorf("reading settings file: %w", err)
	}

	if ctx.Err() != nil {
		return model.ServerSettings{}, ctx.Err()
	}

	var cfg ServerSettings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.ServerSettings{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.ServerSettings{}, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg.toModel(), nil
}

// ServerSettings represents the YAML structure of the server settings.
type ServerSettings struct {
	ListenAddress string         `yaml:"listen_address"`
	Tokens        []string       `yaml:"tokens"`
	Workers       int            `yaml:"workers"`
	QueueSize     int            `yaml:"queue_size"`
	Retention     string         `yaml:"retention"`
	Janitor       JanitorConfig  `yaml:"janitor"`
	Storage       StorageSection `yaml:"storage"`
}

// JanitorConfig represents the YAML structure of the artifact janitor.
type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

// StorageSection represents the YAML structure of the artifact storage.
type StorageSection struct {
	Filesystem *struct{} `yaml:"filesystem,omitempty"`
	S3         *S3Config `yaml:"s3,omitempty"`
}

// S3Config represents the YAML structure of the S3 artifact storage.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

func (c ServerSettings) validate() error {
	for i, t := range c.Tokens {
		if t == "" {
			return fmt.Errorf("token %d is empty", i)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers can't be negative, got: %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size can't be negative, got: %d", c.QueueSize)
	}
	if c.Retention != "" {
		d, err := time.ParseDuration(c.Retention)
		if err != nil {
			return fmt.Errorf("invalid retention: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("retention must be positive, got: %s", d)
		}
	}

	if c.Storage.Filesystem != nil && c.Storage.S3 != nil {
		return fmt.Errorf("only one storage can be specified at a time")
	}
	if c.Storage.S3 != nil && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3 storage bucket is required")
	}

	return nil
}

func (c ServerSettings) toModel() model.ServerSettings {
	s := model.ServerSettings{
		ListenAddress:   c.ListenAddress,
		Tokens:          c.Tokens,
		Workers:         c.Workers,
		QueueSize:       c.QueueSize,
		JanitorSchedule: c.Janitor.Schedule,
	}

	// Already validated.
	if c.Retention != "" {
		s.Retention, _ = time.ParseDuration(c.Retention)
	}

	if c.Storage.S3 != nil {
		s.S3 = &model.S3Settings{
			Bucket:   c.Storage.S3.Bucket,
			Prefix:   c.Storage.S3.Prefix,
			Region:   c.Storage.S3.Region,
			Endpoint: c.Storage.S3.Endpoint,
		}
	}

	return s
}

package model

import "time"

// ServerSettings is the server configuration loaded from the settings file.
type ServerSettings struct {
	ListenAddress string
	Tokens        []string
	Workers       int
	QueueSize     int
	// Retention is how long the artifacts of finished operations are kept.
	Retention       time.Duration
	JanitorSchedule string
	// S3 is nil when the artifacts are stored on the local filesystem.
	S3 *S3Settings
}

// S3Settings configures the S3 artifact storage.
type S3Settings struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

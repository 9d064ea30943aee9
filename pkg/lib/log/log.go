// Package log provides the logging interface for the restorewatch SDK.
//
// The SDK accepts any implementation of [Logger], [Noop] is used when none is configured.
// A logrus based application can reuse the adapter the CLI uses:
//
//	logger := logrus.NewEntry(logrus.New())
//	client, err := lib.New(lib.Config{
//	    Token:  token,
//	    Logger: myLogrusAdapter{logger},
//	})
//
// Only the format methods (Infof, Warningf, Errorf, Debugf) need meaningful
// implementations, the rest can return the same logger.
package log

import "github.com/slok/restorewatch/internal/log"

// Logger is the interface that loggers must implement for the SDK.
type Logger = log.Logger

// Kv is a helper type for structured logging key-value pairs.
type Kv = log.Kv

// Noop is a logger that discards all log output.
var Noop = log.Noop

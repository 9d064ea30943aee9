package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/restorewatch/internal/artifactstore"
	"github.com/slok/restorewatch/internal/conventions"
	"github.com/slok/restorewatch/internal/emitter"
	"github.com/slok/restorewatch/internal/janitor"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/runner"
	"github.com/slok/restorewatch/internal/server"
	"github.com/slok/restorewatch/internal/storage/io"
	"github.com/slok/restorewatch/internal/storage/sqlite"
)

type ServerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddress   string
	configFile      string
	workers         int
	queueSize       int
	retention       time.Duration
	janitorSchedule string
}

// NewServerCommand returns the server command.
func NewServerCommand(rootCmd *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("server", "Run the restore server.")
	c.Cmd.Flag("listen-address", "Address the HTTP API listens on.").StringVar(&c.listenAddress)
	c.Cmd.Flag("config", "Path to the server settings YAML file (defaults to server.yaml inside the data dir, if present).").StringVar(&c.configFile)
	c.Cmd.Flag("workers", "Number of concurrent restore jobs.").IntVar(&c.workers)
	c.Cmd.Flag("queue-size", "Number of restore jobs waiting for a worker.").IntVar(&c.queueSize)
	c.Cmd.Flag("retention", "How long the artifacts of finished operations are kept.").DurationVar(&c.retention)
	c.Cmd.Flag("janitor-schedule", "Cron schedule of the artifact janitor.").StringVar(&c.janitorSchedule)

	return c
}

func (c ServerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	dataDir := c.rootCmd.DataDir

	settings, err := c.loadSettings(ctx)
	if err != nil {
		return err
	}
	if c.rootCmd.Token != "" {
		settings.Tokens = append(settings.Tokens, c.rootCmd.Token)
	}

	workDir := conventions.WorkPath(dataDir)
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return fmt.Errorf("could not create work dir: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: conventions.DBPath(dataDir),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	var store artifactstore.Store
	if s3 := settings.S3; s3 != nil {
		store, err = artifactstore.NewS3Store(ctx, artifactstore.S3StoreConfig{
			Bucket:   s3.Bucket,
			Prefix:   s3.Prefix,
			Region:   s3.Region,
			Endpoint: s3.Endpoint,
			SpoolDir: workDir,
			Logger:   logger,
		})
	} else {
		store, err = artifactstore.NewFSStore(artifactstore.FSStoreConfig{
			Dir:    conventions.ArtifactsPath(dataDir),
			Logger: logger,
		})
	}
	if err != nil {
		return fmt.Errorf("could not create artifact store: %w", err)
	}

	hub, err := emitter.NewHub(emitter.HubConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create event hub: %w", err)
	}

	jobRunner, err := runner.NewRunner(runner.RunnerConfig{
		Emitter:   hub,
		Store:     store,
		WorkDir:   workDir,
		Workers:   settings.Workers,
		QueueSize: settings.QueueSize,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create runner: %w", err)
	}

	srv, err := server.NewServer(server.ServerConfig{
		Repository: repo,
		Hub:        hub,
		Runner:     jobRunner,
		Store:      store,
		Tokens:     settings.Tokens,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	jan, err := janitor.NewJanitor(janitor.JanitorConfig{
		Repository: repo,
		Store:      store,
		Retention:  settings.Retention,
		Schedule:   settings.JanitorSchedule,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create janitor: %w", err)
	}

	var g run.Group

	// Command context.
	{
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {},
		)
	}

	// Restore workers.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return jobRunner.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Artifact janitor.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return jan.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// HTTP API.
	{
		// Cancelled on shutdown so the open progress channels end.
		ctx, cancel := context.WithCancel(ctx)
		httpServer := &http.Server{
			Addr:              settings.ListenAddress,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		g.Add(
			func() error {
				logger.Infof("Restore server listening on %s", settings.ListenAddress)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				cancel()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warningf("Could not shut down http server gracefully: %s", err)
				}
			},
		)
	}

	return g.Run()
}

// loadSettings merges the optional settings file with the flags, flags take precedence.
func (c ServerCommand) loadSettings(ctx context.Context) (model.ServerSettings, error) {
	var settings model.ServerSettings

	configPath := c.configFile
	if configPath == "" {
		configPath = conventions.ConfigPath(c.rootCmd.DataDir)
		if _, err := os.Stat(configPath); err != nil {
			configPath = ""
		}
	}

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return settings, fmt.Errorf("could not resolve settings path: %w", err)
		}

		repo := io.NewSettingsYAMLRepository(os.DirFS("/"))
		settings, err = repo.GetSettings(ctx, absPath[1:])
		if err != nil {
			return settings, fmt.Errorf("could not load server settings: %w", err)
		}
		c.rootCmd.Logger.Infof("Loaded server settings from %s", absPath)
	}

	if c.listenAddress != "" {
		settings.ListenAddress = c.listenAddress
	}
	if settings.ListenAddress == "" {
		settings.ListenAddress = conventions.DefaultListenAddress
	}
	if c.workers > 0 {
		settings.Workers = c.workers
	}
	if c.queueSize > 0 {
		settings.QueueSize = c.queueSize
	}
	if c.retention > 0 {
		settings.Retention = c.retention
	}
	if c.janitorSchedule != "" {
		settings.JanitorSchedule = c.janitorSchedule
	}

	return settings, nil
}

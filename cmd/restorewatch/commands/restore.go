package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/k0kubun/go-ansi"

	"github.com/slok/restorewatch/internal/app/restore"
	"github.com/slok/restorewatch/internal/credential"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/printer"
	"github.com/slok/restorewatch/internal/reconcile"
	"github.com/slok/restorewatch/internal/stream"
	"github.com/slok/restorewatch/internal/upload"
)

type RestoreCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file       string
	key        string
	noPrompt   bool
	noProgress bool
	format     string
}

// NewRestoreCommand returns the restore command.
func NewRestoreCommand(rootCmd *RootCommand, app *kingpin.Application) *RestoreCommand {
	c := &RestoreCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("restore", "Upload a backup artifact and follow the restore until it ends.")
	c.Cmd.Arg("file", "Backup artifact to restore.").Required().StringVar(&c.file)
	c.Cmd.Flag("key", "Decryption key of an encrypted artifact.").Envar("RESTOREWATCH_KEY").StringVar(&c.key)
	c.Cmd.Flag("no-prompt", "Don't ask for the decryption key, encrypted artifacts without key stop waiting for it.").BoolVar(&c.noPrompt)
	c.Cmd.Flag("no-progress", "Disable the progress bar.").BoolVar(&c.noProgress)
	c.Cmd.Flag("format", "Output format of the final result.").Short('o').Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RestoreCommand) Name() string { return c.Cmd.FullCommand() }

func (c RestoreCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := c.rootCmd.newClient()
	if err != nil {
		return err
	}

	creds, err := credential.NewServerProvider(credential.ServerProviderConfig{
		Bearer:    client.Bearer(),
		Requester: client,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create credential provider: %w", err)
	}

	orch, err := upload.NewOrchestrator(upload.OrchestratorConfig{
		Credentials: creds,
		Initiator:   client,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create upload orchestrator: %w", err)
	}

	watcher, err := stream.NewWatcher(stream.WatcherConfig{
		Subscriber: stream.NewAPISubscriber(client),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create progress watcher: %w", err)
	}

	rec, err := reconcile.NewReconciler(reconcile.ReconcilerConfig{
		History: client,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create reconciler: %w", err)
	}

	svcCfg := restore.ServiceConfig{
		Uploader:   orch,
		Watcher:    watcher,
		Reconciler: rec,
		Canceler:   client,
		Logger:     logger,
	}
	if !c.noPrompt && c.key == "" {
		kp, err := newTerminalKeyProvider(c.rootCmd.Stderr)
		if err != nil {
			logger.Debugf("Key prompt disabled: %s", err)
		} else {
			svcCfg.KeyProvider = kp
		}
	}

	svc, err := restore.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("could not create restore service: %w", err)
	}

	f, err := os.Open(c.file)
	if err != nil {
		return fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	req := restore.Request{
		Artifact:      f,
		Filename:      filepath.Base(c.file),
		DecryptionKey: c.key,
	}

	if !c.noProgress {
		var w io.Writer = c.rootCmd.Stderr
		if !c.rootCmd.NoColor {
			w = ansi.NewAnsiStderr()
		}
		renderer := printer.NewProgressRenderer(w, !c.rootCmd.NoColor)
		req.OnUpdate = renderer.Update
		req.OnTerminal = renderer.Finish
	}

	resp, err := svc.Run(ctx, req)
	if resp != nil && resp.View.OperationID != "" {
		if perr := c.rootCmd.printer(c.format).PrintView(resp.View); perr != nil {
			return fmt.Errorf("could not print result: %w", perr)
		}
	}

	var keyErr *model.KeyRequiredError
	switch {
	case errors.As(err, &keyErr):
		return fmt.Errorf("%w, use --key or run without --no-prompt on a terminal", err)
	case err != nil:
		return fmt.Errorf("restore failed: %w", err)
	}

	return nil
}

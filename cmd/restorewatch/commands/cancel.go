package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	operationID string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Request the cancellation of a running operation.")
	c.Cmd.Arg("operation-id", "Operation ID.").Required().StringVar(&c.operationID)

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient()
	if err != nil {
		return err
	}

	if err := client.Cancel(ctx, c.operationID); err != nil {
		return fmt.Errorf("could not cancel operation: %w", err)
	}

	c.rootCmd.Logger.Infof("Cancellation of operation %s requested", c.operationID)
	return nil
}

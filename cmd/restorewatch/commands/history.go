package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	operationID string
	format      string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show the progress event log of an operation.")
	c.Cmd.Arg("operation-id", "Operation ID.").Required().StringVar(&c.operationID)
	c.Cmd.Flag("format", "Output format.").Short('o').Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient()
	if err != nil {
		return err
	}

	events, err := client.History(ctx, c.operationID)
	if err != nil {
		return fmt.Errorf("could not get operation history: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintHistory(events)
}

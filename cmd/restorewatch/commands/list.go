package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/model"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	status string
	kind   string
	format string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List restore operations.")
	c.Cmd.Alias("ls")
	c.Cmd.Flag("status", "Filter by status.").EnumVar(&c.status,
		string(model.OperationStatusRunning),
		string(model.OperationStatusCompleted),
		string(model.OperationStatusFailed),
	)
	c.Cmd.Flag("kind", "Filter by artifact kind.").EnumVar(&c.kind,
		string(model.KindDatabase),
		string(model.KindFiles),
		string(model.KindFullSystem),
	)
	c.Cmd.Flag("format", "Output format.").Short('o').Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newClient()
	if err != nil {
		return err
	}

	ops, err := client.List(ctx, api.ListFilter{
		Status: model.OperationStatus(c.status),
		Kind:   model.Kind(c.kind),
	})
	if err != nil {
		return fmt.Errorf("could not list operations: %w", err)
	}

	return c.rootCmd.printer(c.format).PrintList(ops)
}

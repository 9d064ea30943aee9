package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/restorewatch/internal/artifact"
)

type InspectCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file   string
	format string
}

// NewInspectCommand returns the inspect command.
func NewInspectCommand(rootCmd *RootCommand, app *kingpin.Application) *InspectCommand {
	c := &InspectCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("inspect", "Classify a backup artifact locally, without contacting the server.")
	c.Cmd.Arg("file", "Backup artifact to inspect.").Required().StringVar(&c.file)
	c.Cmd.Flag("format", "Output format.").Short('o').Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c InspectCommand) Name() string { return c.Cmd.FullCommand() }

func (c InspectCommand) Run(ctx context.Context) error {
	f, err := os.Open(c.file)
	if err != nil {
		return fmt.Errorf("could not open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("could not stat artifact: %w", err)
	}

	name := filepath.Base(c.file)
	cls, err := artifact.InspectReader(bufio.NewReader(f), name)
	if err != nil {
		c.rootCmd.Logger.Warningf("Classified by filename only: %s", err)
	}

	return c.rootCmd.printer(c.format).PrintClassification(name, info.Size(), cls)
}

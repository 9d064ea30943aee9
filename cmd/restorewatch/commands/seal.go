package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/restorewatch/internal/artifact"
)

type SealCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	in  string
	out string
	key string
}

// NewSealCommand returns the seal command.
func NewSealCommand(rootCmd *RootCommand, app *kingpin.Application) *SealCommand {
	c := &SealCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("seal", "Encrypt a backup artifact so the server can restore it with a key.")
	c.Cmd.Arg("in", "Plain artifact.").Required().StringVar(&c.in)
	c.Cmd.Arg("out", "Encrypted artifact destination, usually ending in .enc.").Required().StringVar(&c.out)
	c.Cmd.Flag("key", "Encryption key, asked on the terminal when missing.").Envar("RESTOREWATCH_KEY").StringVar(&c.key)

	return c
}

func (c SealCommand) Name() string { return c.Cmd.FullCommand() }

func (c SealCommand) Run(ctx context.Context) error {
	key := c.key
	if key == "" {
		kp, err := newTerminalKeyProvider(c.rootCmd.Stderr)
		if err != nil {
			return fmt.Errorf("a key is required (--key or RESTOREWATCH_KEY): %w", err)
		}
		key, err = kp.prompt(ctx, "Encryption key: ")
		if err != nil {
			return err
		}
		confirm, err := kp.prompt(ctx, "Repeat encryption key: ")
		if err != nil {
			return err
		}
		if key != confirm {
			return fmt.Errorf("keys don't match")
		}
	}

	src, err := os.Open(c.in)
	if err != nil {
		return fmt.Errorf("could not open artifact: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(c.out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("could not create sealed artifact: %w", err)
	}

	if err := artifact.Seal(dst, src, key); err != nil {
		dst.Close()
		_ = os.Remove(c.out)
		return fmt.Errorf("could not seal artifact: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("could not write sealed artifact: %w", err)
	}

	c.rootCmd.Logger.Infof("Artifact sealed into %s", c.out)
	return nil
}

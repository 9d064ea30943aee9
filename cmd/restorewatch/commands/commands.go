package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/conventions"
	"github.com/slok/restorewatch/internal/log"
	"github.com/slok/restorewatch/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	DataDir    string
	ServerURL  string
	Token      string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory of the server database and artifacts.").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("server", "Restore server URL.").Default(conventions.DefaultServerURL).StringVar(&c.ServerURL)
	app.Flag("token", "Static bearer token used against the restore server.").StringVar(&c.Token)

	return c
}

// newClient returns an API client for the configured server.
func (r *RootCommand) newClient() (*api.Client, error) {
	if r.Token == "" {
		return nil, fmt.Errorf("a bearer token is required (--token or RESTOREWATCH_TOKEN)")
	}

	c, err := api.NewClient(api.ClientConfig{
		BaseURL: r.ServerURL,
		Bearer:  r.Token,
		Logger:  r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create api client: %w", err)
	}
	return c, nil
}

func (r *RootCommand) printer(format string) printer.Printer {
	if format == "json" {
		return printer.NewJSONPrinter(r.Stdout)
	}
	return printer.NewTablePrinter(r.Stdout)
}

// Package command implements the hostbridge subcommands. Each one builds
// its own stack from the resolved settings: run hosts a script behind the
// bridge, serve exposes the built-in modules over gRPC and call dispatches
// a single module command from the shell.
package command

import (
	"context"
	"flag"
	"io"
)

// Command is one hostbridge subcommand, selected by the first argument.
type Command interface {
	// Name is the word typed after "hostbridge".
	Name() string

	// Description is the one line shown by help.
	Description() string

	// Usage is printed after "Usage: hostbridge" when arguments are wrong.
	Usage() string

	// SetupFlags registers the command's flags. Commands that need
	// settings also register the shared -config and -log-* flags.
	SetupFlags(fs *flag.FlagSet)

	// Execute runs with the arguments left after flag parsing. ctx ends on
	// SIGINT or SIGTERM; serve stops gracefully and run abandons pending
	// dispatches.
	Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// BaseCommand holds the help text of a command. Commands embed it and
// override SetupFlags when they take flags.
type BaseCommand struct {
	name        string
	description string
	usage       string
}

func NewBaseCommand(name, description, usage string) *BaseCommand {
	return &BaseCommand{
		name:        name,
		description: description,
		usage:       usage,
	}
}

func (c *BaseCommand) Name() string { return c.name }

func (c *BaseCommand) Description() string { return c.description }

func (c *BaseCommand) Usage() string { return c.usage }

// SetupFlags adds no flags; help and version take none.
func (c *BaseCommand) SetupFlags(*flag.FlagSet) {}

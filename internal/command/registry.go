package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
)

// Registry manages the collection of available commands.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd, replacing any command of the same name.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Get returns a command by name.
func (r *Registry) Get(name string) (Command, error) {
	if cmd, exists := r.commands[name]; exists {
		return cmd, nil
	}
	return nil, fmt.Errorf("command not found: %s", name)
}

// List returns the sorted command names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run parses argv (without the program name) and executes the named
// command. No arguments, -h and --help run the help command if registered.
func (r *Registry) Run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" {
		help, err := r.Get("help")
		if err != nil {
			return err
		}
		return help.Execute(ctx, nil, stdout, stderr)
	}

	cmd, err := r.Get(argv[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", argv[0])
		_, _ = fmt.Fprintln(stderr, "Use 'hostbridge help' to see available commands.")
		return err
	}

	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: hostbridge %s\n", cmd.Usage())
		_, _ = fmt.Fprintf(stderr, "\n%s\n\n", cmd.Description())
		_, _ = fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}
	cmd.SetupFlags(fs)
	if err := fs.Parse(argv[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	return cmd.Execute(ctx, fs.Args(), stdout, stderr)
}

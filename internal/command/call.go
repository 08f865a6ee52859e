package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// CallCommand dispatches a single module command from the shell and prints
// the result as JSON.
type CallCommand struct {
	*BaseCommand
	config  *config.Config
	version string
	environ map[string]string

	common  commonFlags
	address string
	timeout time.Duration
}

// NewCallCommand creates a new call command.
func NewCallCommand(cfg *config.Config, version string) *CallCommand {
	return &CallCommand{
		BaseCommand: NewBaseCommand(
			"call",
			"Dispatch one module command and print the result as JSON",
			`call [options] <module> <command> ['{"json": "args"}']`,
		),
		config:  cfg,
		version: version,
	}
}

// SetupFlags configures the flags for the call command.
func (c *CallCommand) SetupFlags(fs *flag.FlagSet) {
	c.common.setup(fs)
	fs.StringVar(&c.address, "remote", "", "Call the module served at this address instead of the configured modules")
	fs.DurationVar(&c.timeout, "timeout", 0, "How long to wait for the result (default from [run] wait)")
}

type callResult struct {
	v   value.Value
	err error
}

// Execute dispatches the command and writes the JSON result to stdout.
func (c *CallCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 2 || len(args) > 3 {
		_, _ = fmt.Fprintf(stderr, "Usage: hostbridge %s\n", c.Usage())
		return errors.New("call requires a module, a command and optional JSON arguments")
	}
	module, command := args[0], args[1]
	commandArgs := value.Map(nil)
	if len(args) == 3 {
		v, err := value.ParseJSON([]byte(args[2]))
		if err != nil {
			return fmt.Errorf("parse arguments: %w", err)
		}
		if v.Kind() != value.KindMap {
			return fmt.Errorf("arguments must be a JSON object, got %s", v.Kind())
		}
		commandArgs = v
	}

	cfg, s, err := c.common.settings(c.config, c.environ)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		s.Wait = c.timeout
	}

	st, err := newStack(ctx, s, stderr, c.version)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()

	remotes := cfg.Remotes
	if c.address != "" {
		remotes = []config.Remote{{Module: module, Address: c.address}}
	}
	reg, closeModules, err := moduleRegistry(ctx, st.logger, remotes)
	if err != nil {
		return err
	}
	defer closeModules()

	router := dispatch.NewRouter(dispatch.KindModule, reg,
		dispatch.WithLogger(st.logger),
		dispatch.WithObserver(st.metrics),
	)

	ctx, cancel := context.WithTimeout(ctx, s.Wait)
	defer cancel()
	done := make(chan callResult, 1)
	router.Dispatch(ctx, dispatch.Request{
		ID:      uuid.NewString(),
		Target:  module,
		Command: command,
		Args:    commandArgs,
	}, dispatch.Completion{
		OnSuccess: func(v value.Value) { done <- callResult{v: v} },
		OnFailure: func(err error) { done <- callResult{err: err} },
	})

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return fmt.Errorf("%s.%s: %w", module, command, ctx.Err())
	}
	if res.err != nil {
		_, _ = fmt.Fprintf(stderr, "Error (%s): %v\n", dispatch.KindOf(res.err), res.err)
		return res.err
	}

	data, err := res.v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintf(stdout, "%s\n", data)
	return err
}

package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/joeycumines/hostbridge/internal/value"
)

// Target is an addressable native entity that executes named commands.
type Target interface {
	// Command returns the command registered under name.
	Command(name string) (Command, bool)
}

// Handler executes a command. It must eventually call exactly one of
// call.Resolve or call.Reject, on any goroutine.
type Handler func(ctx context.Context, call *Call)

// Command binds a name to an argument spec and a handler.
type Command struct {
	Name    string
	Args    ArgSpec
	Handler Handler
}

// SyncHandler adapts a function returning its result directly.
func SyncHandler(fn func(ctx context.Context, args value.Value) (value.Value, error)) Handler {
	return func(ctx context.Context, call *Call) {
		result, err := fn(ctx, call.Args())
		if err != nil {
			call.Reject(err)
			return
		}
		call.Resolve(result)
	}
}

// CommandSet is a Target backed by a fixed table of commands.
type CommandSet struct {
	commands map[string]Command
}

// NewCommandSet builds a CommandSet. It panics on an empty or duplicate
// name or a nil handler, since those are programming errors.
func NewCommandSet(commands ...Command) *CommandSet {
	s := &CommandSet{commands: make(map[string]Command, len(commands))}
	for _, cmd := range commands {
		switch {
		case cmd.Name == "":
			panic("dispatch: command name must not be empty")
		case cmd.Handler == nil:
			panic(fmt.Sprintf("dispatch: command %q has no handler", cmd.Name))
		}
		if _, dup := s.commands[cmd.Name]; dup {
			panic(fmt.Sprintf("dispatch: duplicate command %q", cmd.Name))
		}
		s.commands[cmd.Name] = cmd
	}
	return s
}

// Command implements Target.
func (s *CommandSet) Command(name string) (Command, bool) {
	cmd, ok := s.commands[name]
	return cmd, ok
}

// Names returns the command names, sorted.
func (s *CommandSet) Names() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

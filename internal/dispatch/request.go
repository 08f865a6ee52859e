// Package dispatch routes named commands to native targets.
//
// A Router resolves a target identifier, looks up the command, validates
// the argument bag against the command's ArgSpec and runs the handler. The
// outcome is reported through a Completion: exactly one of OnSuccess or
// OnFailure is called, exactly once, either before Dispatch returns or
// later from any goroutine.
//
// There is no timeout and no cancellation. A handler that never completes
// its Call leaves the dispatch pending forever; that is the target's
// responsibility.
package dispatch

import (
	"context"

	"github.com/joeycumines/hostbridge/internal/value"
)

// TargetKind is the resolution domain of a target identifier.
type TargetKind uint8

const (
	// KindView targets are addressed by view instance id.
	KindView TargetKind = iota + 1
	// KindModule targets are addressed by module name.
	KindModule
)

func (k TargetKind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindModule:
		return "module"
	default:
		return "target"
	}
}

// Request is one command invocation.
type Request struct {
	// ID correlates logs and spans. Optional.
	ID      string
	Kind    TargetKind
	Target  string
	Command string
	// Args is the argument bag, normally a map value.
	Args value.Value
}

// Completion receives the outcome of a dispatch. Both functions must be set.
type Completion struct {
	OnSuccess func(result value.Value)
	OnFailure func(err error)
}

// Dispatcher is implemented by Router. Adapters depend on this interface.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request, done Completion)
}

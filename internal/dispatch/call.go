package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joeycumines/hostbridge/internal/value"
)

// Call is the in-flight state of one dispatch, handed to a Handler.
// Resolve and Reject may be called from any goroutine; only the first
// call has any effect.
type Call struct {
	req     Request
	done    Completion
	router  *Router
	span    trace.Span
	start   time.Time
	settled atomic.Bool
}

// Request returns the request being executed.
func (c *Call) Request() Request { return c.req }

// Args returns the validated argument bag.
func (c *Call) Args() value.Value { return c.req.Args }

// Resolve completes the dispatch successfully.
func (c *Call) Resolve(result value.Value) {
	c.finish(result, nil)
}

// Reject completes the dispatch with err. Errors that are not already an
// *Error are reported as execution errors; an *Error without target
// details has them filled in.
func (c *Call) Reject(err error) {
	if err == nil {
		err = errors.New("command failed without an error")
	}
	c.finish(value.Null(), c.classify(ErrorExecution, err))
}

// Rejectf is Reject with a formatted message.
func (c *Call) Rejectf(format string, args ...any) {
	c.Reject(fmt.Errorf(format, args...))
}

func (c *Call) classify(kind ErrorKind, err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		out := *de
		if out.Target == "" {
			out.TargetKind = c.req.Kind
			out.Target = c.req.Target
		}
		if out.Command == "" {
			out.Command = c.req.Command
		}
		return &out
	}
	return &Error{
		Kind:       kind,
		TargetKind: c.req.Kind,
		Target:     c.req.Target,
		Command:    c.req.Command,
		Err:        err,
	}
}

func (c *Call) finish(result value.Value, err *Error) {
	if !c.settled.CompareAndSwap(false, true) {
		c.router.logger.Error("dispatch completed more than once; ignoring",
			slog.String("id", c.req.ID),
			slog.String("kind", c.req.Kind.String()),
			slog.String("target", c.req.Target),
			slog.String("command", c.req.Command))
		return
	}

	elapsed := time.Since(c.start)
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	} else {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()

	var reported error
	if err != nil {
		reported = err
	}
	if c.router.observer != nil {
		c.router.observer.DispatchSettled(c.req.Kind, c.req.Command, reported, elapsed)
	}

	if err != nil {
		c.router.logger.Debug("dispatch rejected",
			slog.String("id", c.req.ID),
			slog.String("target", c.req.Target),
			slog.String("command", c.req.Command),
			slog.String("error_kind", err.Kind.String()),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		c.done.OnFailure(err)
		return
	}
	c.router.logger.Debug("dispatch resolved",
		slog.String("id", c.req.ID),
		slog.String("target", c.req.Target),
		slog.String("command", c.req.Command),
		slog.Duration("elapsed", elapsed))
	c.done.OnSuccess(result)
}

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joeycumines/hostbridge/internal/value"
)

const tracerName = "github.com/joeycumines/hostbridge/internal/dispatch"

// Resolver maps an identifier to a live target. It must be safe to call
// from any goroutine.
type Resolver interface {
	Resolve(ctx context.Context, id string) (Target, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id string) (Target, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, id string) (Target, error) { return f(ctx, id) }

// Observer is notified of dispatch lifecycle events, e.g. for metrics.
type Observer interface {
	DispatchStarted(kind TargetKind, command string)
	// DispatchSettled receives a nil err on success.
	DispatchSettled(kind TargetKind, command string, err error, elapsed time.Duration)
}

// Router executes requests for one target kind.
type Router struct {
	kind     TargetKind
	resolver Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for dispatch spans. The default comes
// from the global otel TracerProvider.
func WithTracer(tracer trace.Tracer) RouterOption {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(observer Observer) RouterOption {
	return func(r *Router) { r.observer = observer }
}

// NewRouter returns a Router resolving identifiers of the given kind.
// It panics if resolver is nil.
func NewRouter(kind TargetKind, resolver Resolver, opts ...RouterOption) *Router {
	if resolver == nil {
		panic("dispatch: resolver must not be nil")
	}
	r := &Router{
		kind:     kind,
		resolver: resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kind returns the target kind this router serves.
func (r *Router) Kind() TargetKind { return r.kind }

// Dispatch executes req and reports the outcome through done. It never
// returns an error directly: every failure, including a handler panic, is
// delivered to done.OnFailure. It panics if done is incomplete.
func (r *Router) Dispatch(ctx context.Context, req Request, done Completion) {
	if done.OnSuccess == nil || done.OnFailure == nil {
		panic("dispatch: completion requires both OnSuccess and OnFailure")
	}
	req.Kind = r.kind

	ctx, span := r.tracer.Start(ctx, "dispatch."+r.kind.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("hostbridge.request_id", req.ID),
			attribute.String("hostbridge.target", req.Target),
			attribute.String("hostbridge.command", req.Command),
		))

	call := &Call{
		req:    req,
		done:   done,
		router: r,
		span:   span,
		start:  time.Now(),
	}

	if r.observer != nil {
		r.observer.DispatchStarted(r.kind, req.Command)
	}
	r.logger.Debug("dispatch",
		slog.String("id", req.ID),
		slog.String("kind", r.kind.String()),
		slog.String("target", req.Target),
		slog.String("command", req.Command),
		slog.Any("args", req.Args))

	target, err := r.resolver.Resolve(ctx, req.Target)
	if err == nil && target == nil {
		err = fmt.Errorf("%w: %q", ErrNoSuchTarget, req.Target)
	}
	if err != nil {
		call.finish(value.Null(), call.classify(ErrorResolution, &Error{Kind: ErrorResolution, Err: err}))
		return
	}

	cmd, ok := target.Command(req.Command)
	if !ok {
		call.finish(value.Null(), call.classify(ErrorUnsupportedCommand, &Error{Kind: ErrorUnsupportedCommand}))
		return
	}

	if err := cmd.Args.Validate(req.Args); err != nil {
		call.finish(value.Null(), call.classify(ErrorArgumentShape, err))
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command handler panicked",
				slog.String("id", req.ID),
				slog.String("target", req.Target),
				slog.String("command", req.Command),
				slog.Any("panic", p))
			call.Reject(fmt.Errorf("%s %q command %q panicked: %v", r.kind, req.Target, req.Command, p))
		}
	}()
	cmd.Handler(ctx, call)
}

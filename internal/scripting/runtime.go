// Package scripting owns the JavaScript VM and the event loop that
// serializes every access to it.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"github.com/joeycumines/hostbridge/internal/goroutineid"
)

// ErrNotRunning is returned when work is submitted to a stopped runtime.
var ErrNotRunning = errors.New("event loop not running")

// Runtime wraps a goja VM driven by a goja_nodejs event loop.
//
// goja.Runtime is not goroutine-safe: all access must happen inside a
// RunOnLoop or RunOnLoopSync callback, and promise resolve/reject functions
// must only be called there.
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry
	logger   *slog.Logger
	timeout  time.Duration

	// loopGoroutineID is captured once when the loop starts.
	loopGoroutineID atomic.Int64

	mu      sync.RWMutex
	started bool
	stopped bool

	// ctx is independent of the parent context so that Done is only closed
	// after stopped has been set.
	ctx    context.Context
	cancel context.CancelFunc
}

// DefaultSyncTimeout bounds RunOnLoopSync.
const DefaultSyncTimeout = 5 * time.Second

// Option configures a Runtime.
type Option func(*Runtime)

// WithRegistry shares an existing require.Registry.
func WithRegistry(registry *require.Registry) Option {
	return func(rt *Runtime) { rt.registry = registry }
}

// WithLogger sets the logger used for loop lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = logger }
}

// WithSyncTimeout sets the RunOnLoopSync timeout; 0 disables it.
func WithSyncTimeout(timeout time.Duration) Option {
	return func(rt *Runtime) { rt.timeout = timeout }
}

// NewRuntime starts an event loop in a background goroutine. Cancelling ctx
// closes the runtime; Close must be called otherwise.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		ctx:     childCtx,
		cancel:  cancel,
		timeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.registry == nil {
		rt.registry = require.NewRegistry()
	}
	if rt.logger == nil {
		rt.logger = slog.Default()
	}

	rt.loop = eventloop.NewEventLoop(
		eventloop.WithRegistry(rt.registry),
		eventloop.EnableConsole(true),
	)
	rt.loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	ready := make(chan struct{})
	if !rt.loop.RunOnLoop(func(*goja.Runtime) {
		rt.loopGoroutineID.Store(goroutineid.Get())
		close(ready)
	}) {
		cancel()
		return nil, fmt.Errorf("failed to initialize runtime: %w", ErrNotRunning)
	}
	<-ready

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = rt.Close() })
	}
	rt.logger.Debug("event loop started", slog.Int64("goroutine", rt.loopGoroutineID.Load()))
	return rt, nil
}

// Registry returns the CommonJS registry used by require().
func (rt *Runtime) Registry() *require.Registry { return rt.registry }

// Close stops the loop, waiting for queued jobs. It is idempotent.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	rt.loop.Stop()
	rt.logger.Debug("event loop stopped")
	return nil
}

// Done is closed once the runtime has stopped.
func (rt *Runtime) Done() <-chan struct{} { return rt.ctx.Done() }

// IsRunning reports whether the loop accepts work.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// RunOnLoop schedules fn on the loop goroutine, reporting whether it was
// accepted.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	if !rt.IsRunning() {
		return false
	}
	return rt.loop.RunOnLoop(fn)
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (rt *Runtime) OnLoop() bool {
	id := rt.loopGoroutineID.Load()
	return id > 0 && id == goroutineid.Get()
}

// RunOnLoopSync runs fn on the loop and waits for it. It must not be called
// from the loop goroutine.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	if rt.OnLoop() {
		return errors.New("RunOnLoopSync called from the event loop goroutine")
	}
	rt.mu.RLock()
	timeout := rt.timeout
	rt.mu.RUnlock()

	errCh := make(chan error, 1)
	if !rt.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return ErrNotRunning
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("runtime stopped before completion")
	case <-timer:
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// RunScript compiles and runs code on the loop. A thrown exception is
// returned as a *goja.Exception.
func (rt *Runtime) RunScript(name, code string) error {
	return rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		prg, err := goja.Compile(name, code, false)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("failed to run %s: %w", name, err)
		}
		return nil
	})
}

// Package bridge exposes the command routers to scripts as host functions
// returning promises.
//
// Calls made with the wrong number or type of arguments throw a TypeError
// before any promise exists. Everything else, including unknown targets and
// commands, settles the returned promise exactly once on the event loop.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// Entry point names.
const (
	FireAndForget    = "fireAndForget"
	DispatchToView   = "dispatchToView"
	DispatchToModule = "dispatchToModule"
)

// Loop schedules work on the goroutine that owns the VM. It is implemented
// by *scripting.Runtime.
type Loop interface {
	RunOnLoop(fn func(*goja.Runtime)) bool
	OnLoop() bool
	// Done is closed when the loop stops accepting work. Jobs accepted by
	// RunOnLoop but not yet run at that point may be discarded.
	Done() <-chan struct{}
}

// Options configures an Adapter.
type Options struct {
	Loop    Loop
	Views   dispatch.Dispatcher
	Modules dispatch.Dispatcher
	// FireAndForget receives the argument of fireAndForget calls. Optional.
	FireAndForget func(ctx context.Context, key value.Value)
	// Context is passed to every dispatch. Defaults to context.Background.
	Context context.Context
	Logger  *slog.Logger
}

// Adapter turns script calls into dispatch requests and dispatch outcomes
// into promise settlements.
type Adapter struct {
	loop    Loop
	views   dispatch.Dispatcher
	modules dispatch.Dispatcher
	fire    func(ctx context.Context, key value.Value)
	ctx     context.Context
	logger  *slog.Logger

	pending inflight
}

// New validates opts and returns an Adapter.
func New(opts Options) (*Adapter, error) {
	if opts.Loop == nil {
		return nil, errors.New("bridge: Loop is required")
	}
	if opts.Views == nil || opts.Modules == nil {
		return nil, errors.New("bridge: Views and Modules dispatchers are required")
	}
	a := &Adapter{
		loop:    opts.Loop,
		views:   opts.Views,
		modules: opts.Modules,
		fire:    opts.FireAndForget,
		ctx:     opts.Context,
		logger:  opts.Logger,
	}
	if a.ctx == nil {
		a.ctx = context.Background()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	go a.abandonOnStop()
	return a, nil
}

func (a *Adapter) abandonOnStop() {
	<-a.loop.Done()
	if n := a.pending.abandon(); n > 0 {
		a.logger.Warn("event loop stopped; promises left pending", slog.Int("count", n))
	}
}

// Pending returns the number of promises not yet settled. It drops to zero
// once the loop stops, since no promise can settle after that.
func (a *Adapter) Pending() int { return a.pending.count() }

// Wait blocks until no promise is pending or ctx is done.
func (a *Adapter) Wait(ctx context.Context) error { return a.pending.wait(ctx) }

type entry struct {
	name  string
	arity int
	fn    func(vm *goja.Runtime) func(goja.FunctionCall) goja.Value
}

func (a *Adapter) entries() []entry {
	return []entry{
		{FireAndForget, 1, a.fireAndForget},
		{DispatchToView, 3, func(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
			return a.dispatchFunc(vm, DispatchToView, "viewID", a.views)
		}},
		{DispatchToModule, 3, func(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
			return a.dispatchFunc(vm, DispatchToModule, "moduleName", a.modules)
		}},
	}
}

// functions builds the host functions for vm, keyed by entry point name.
// The returned slice preserves the entry point order.
func (a *Adapter) functions(vm *goja.Runtime) ([]string, map[string]*goja.Object) {
	entries := a.entries()
	names := make([]string, 0, len(entries))
	fns := make(map[string]*goja.Object, len(entries))
	for _, e := range entries {
		fn := vm.ToValue(e.fn(vm)).(*goja.Object)
		_ = fn.DefineDataProperty("length", vm.ToValue(e.arity), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		_ = fn.DefineDataProperty("name", vm.ToValue(e.name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
		names = append(names, e.name)
		fns[e.name] = fn
	}
	return names, fns
}

func (a *Adapter) fireAndForget(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(vm.NewTypeError(fmt.Sprintf("%s: requires 1 argument, got 0", FireAndForget)))
		}
		key, err := ToValue(vm, call.Arguments[0])
		if err != nil {
			a.logger.Warn("fireAndForget argument not convertible; using null", slog.Any("error", err))
			key = value.Null()
		}
		if a.fire == nil {
			return goja.Undefined()
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("fireAndForget handler panicked", slog.Any("panic", r), slog.String("key", key.String()))
				}
			}()
			a.fire(a.ctx, key)
		}()
		return goja.Undefined()
	}
}

func (a *Adapter) dispatchFunc(vm *goja.Runtime, name, idParam string, router dispatch.Dispatcher) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if n := len(call.Arguments); n < 3 {
			panic(a.protocolError(vm, fmt.Sprintf("%s: requires 3 arguments, got %d", name, n)))
		}
		target, ok := stringArg(call.Argument(0))
		if !ok {
			panic(a.protocolError(vm, fmt.Sprintf("%s: %s must be a string, got %s", name, idParam, typeOf(call.Argument(0)))))
		}
		command, ok := stringArg(call.Argument(1))
		if !ok {
			panic(a.protocolError(vm, fmt.Sprintf("%s: commandName must be a string, got %s", name, typeOf(call.Argument(1)))))
		}
		if !plainObject(call.Argument(2)) {
			panic(a.protocolError(vm, fmt.Sprintf("%s: commandArgs must be an object, got %s", name, typeOf(call.Argument(2)))))
		}
		args, err := ToValue(vm, call.Argument(2))
		if err != nil {
			panic(a.protocolError(vm, fmt.Sprintf("%s: commandArgs: %v", name, err)))
		}

		req := dispatch.Request{
			ID:      uuid.NewString(),
			Target:  target,
			Command: command,
			Args:    args,
		}
		promise, resolve, reject := vm.NewPromise()
		d := newDeferred(req)
		d.start()
		a.pending.add()

		router.Dispatch(a.ctx, req, dispatch.Completion{
			OnSuccess: func(result value.Value) {
				a.settle(vm, d, StateResolved, func(vm *goja.Runtime) {
					resolve(FromValue(vm, result))
				})
			},
			OnFailure: func(err error) {
				a.settle(vm, d, StateRejected, func(vm *goja.Runtime) {
					reject(rejection(vm, req, err))
				})
			},
		})
		return vm.ToValue(promise)
	}
}

// settle applies a terminal transition and runs fn on the loop. Completions
// arriving on the loop goroutine settle inline.
func (a *Adapter) settle(vm *goja.Runtime, d *Deferred, to State, fn func(*goja.Runtime)) {
	if !d.settle(to) {
		req := d.Request()
		a.logger.Error("promise settled more than once; ignoring",
			slog.String("id", req.ID),
			slog.String("target", req.Target),
			slog.String("command", req.Command),
			slog.String("state", d.State().String()),
			slog.String("attempted", to.String()),
		)
		return
	}
	run := func(vm *goja.Runtime) {
		defer a.pending.done()
		fn(vm)
	}
	if a.loop.OnLoop() {
		run(vm)
		return
	}
	if !a.loop.RunOnLoop(run) {
		req := d.Request()
		a.logger.Warn("event loop stopped; promise left pending",
			slog.String("id", req.ID),
			slog.String("target", req.Target),
			slog.String("command", req.Command),
		)
		a.pending.done()
	}
}

// protocolError builds the TypeError thrown for a malformed call.
func (a *Adapter) protocolError(vm *goja.Runtime, msg string) *goja.Object {
	a.logger.Debug("rejected malformed bridge call", slog.String("error", msg))
	err := vm.NewTypeError(msg)
	_ = err.Set("kind", dispatch.ErrorProtocol.String())
	return err
}

// rejection builds the Error a promise is rejected with.
func rejection(vm *goja.Runtime, req dispatch.Request, err error) goja.Value {
	obj, cerr := vm.New(vm.Get("Error"), vm.ToValue(err.Error()))
	if cerr != nil {
		obj = vm.NewGoError(err)
	}
	_ = obj.Set("kind", dispatch.KindOf(err).String())
	_ = obj.Set("target", req.Target)
	_ = obj.Set("command", req.Command)
	return obj
}

func stringArg(v goja.Value) (string, bool) {
	if v == nil {
		return "", false
	}
	if _, isObject := v.(*goja.Object); isObject {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

func plainObject(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return false
	}
	return obj.ClassName() != "Array"
}

// typeOf describes v for error messages, distinguishing null and arrays.
func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	switch v := v.(type) {
	case *goja.Symbol:
		return "symbol"
	case *goja.Object:
		if _, ok := goja.AssertFunction(v); ok {
			return "function"
		}
		if v.ClassName() == "Array" {
			return "array"
		}
		return "object"
	}
	switch v.Export().(type) {
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	default:
		return fmt.Sprintf("%T", v.Export())
	}
}

package bridge

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// Default names under which the entry points are published.
const (
	DefaultGlobalName = "HostBridge"
	DefaultModuleName = "hostbridge"
)

// hostObject is a read-only view of the entry points.
type hostObject struct {
	names []string
	fns   map[string]*goja.Object
}

var _ goja.DynamicObject = (*hostObject)(nil)

func (h *hostObject) Get(key string) goja.Value {
	if fn, ok := h.fns[key]; ok {
		return fn
	}
	return nil
}

// Set ignores writes.
func (h *hostObject) Set(string, goja.Value) bool { return true }

func (h *hostObject) Has(key string) bool {
	_, ok := h.fns[key]
	return ok
}

// Delete ignores deletes.
func (h *hostObject) Delete(string) bool { return true }

func (h *hostObject) Keys() []string {
	return append([]string(nil), h.names...)
}

// Install defines the host object as a global named name (DefaultGlobalName
// if empty). It must be called on the event loop goroutine.
func (a *Adapter) Install(vm *goja.Runtime, name string) error {
	if name == "" {
		name = DefaultGlobalName
	}
	names, fns := a.functions(vm)
	return vm.Set(name, vm.NewDynamicObject(&hostObject{names: names, fns: fns}))
}

// Require is the CommonJS loader for the entry points.
func (a *Adapter) Require(runtime *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	names, fns := a.functions(runtime)
	for _, name := range names {
		_ = exports.Set(name, fns[name])
	}
}

// Register makes the entry points available as require(name)
// (DefaultModuleName if empty).
func (a *Adapter) Register(registry *require.Registry, name string) {
	if name == "" {
		name = DefaultModuleName
	}
	registry.RegisterNativeModule(name, a.Require)
}

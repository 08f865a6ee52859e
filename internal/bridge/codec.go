package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/joeycumines/hostbridge/internal/value"
)

const (
	// MaxDepth bounds the nesting accepted by ToValue.
	MaxDepth = 128
	// MaxItems bounds the total number of list items and map entries
	// accepted by one ToValue call.
	MaxItems = 100_000
)

// ToValue converts a script value into a structured value. Undefined and
// null become null; arrays become lists; other objects become maps of
// their own enumerable string keys, in enumeration order. Functions,
// symbols, cyclic references, nesting deeper than MaxDepth and more than
// MaxItems elements in total are errors. Sizes are checked before anything
// is allocated, so sparse arrays with a huge length fail fast.
//
// It must be called on the event loop goroutine.
func ToValue(_ *goja.Runtime, v goja.Value) (value.Value, error) {
	c := converter{path: make(map[*goja.Object]struct{})}
	return c.convert(v, "", 0)
}

type converter struct {
	// path holds the objects on the current descent, for cycle detection.
	path map[*goja.Object]struct{}
	// items counts list items and map entries accepted so far.
	items int64
}

func (c *converter) reserve(at string, n int64) error {
	if n < 0 || n > MaxItems-c.items {
		return c.errorf(at, "more than %d items", MaxItems)
	}
	c.items += n
	return nil
}

func (c *converter) convert(v goja.Value, at string, depth int) (value.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.Null(), nil
	}
	switch v := v.(type) {
	case *goja.Symbol:
		return value.Null(), c.errorf(at, "symbols cannot be converted")
	case *goja.Object:
		return c.convertObject(v, at, depth)
	}
	switch x := v.Export().(type) {
	case bool, int64, float64, string:
		return value.FromGo(x)
	default:
		return value.Null(), c.errorf(at, "unsupported value of type %T", x)
	}
}

func (c *converter) convertObject(obj *goja.Object, at string, depth int) (value.Value, error) {
	if _, ok := goja.AssertFunction(obj); ok {
		return value.Null(), c.errorf(at, "functions cannot be converted")
	}
	if depth >= MaxDepth {
		return value.Null(), c.errorf(at, "nesting exceeds %d levels", MaxDepth)
	}
	if _, cyclic := c.path[obj]; cyclic {
		return value.Null(), c.errorf(at, "cyclic reference")
	}
	c.path[obj] = struct{}{}
	defer delete(c.path, obj)

	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		if err := c.reserve(at, n); err != nil {
			return value.Null(), err
		}
		items := make([]value.Value, n)
		for i := range items {
			item, err := c.convert(obj.Get(strconv.Itoa(i)), at+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return value.Null(), err
			}
			items[i] = item
		}
		return value.List(items...), nil
	}

	keys := obj.Keys()
	if err := c.reserve(at, int64(len(keys))); err != nil {
		return value.Null(), err
	}
	m := value.NewObjectSize(len(keys))
	for _, key := range keys {
		item, err := c.convert(obj.Get(key), at+"."+key, depth+1)
		if err != nil {
			return value.Null(), err
		}
		m.Set(key, item)
	}
	return value.Map(m), nil
}

func (c *converter) errorf(at string, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if at == "" {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %s", strings.TrimPrefix(at, "."), msg)
}

// FromValue converts a structured value into a script value, creating
// fresh arrays and plain objects. It must be called on the event loop
// goroutine.
func FromValue(vm *goja.Runtime, v value.Value) goja.Value {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return vm.ToValue(b)
	case value.KindNumber:
		n, _ := v.AsNumber()
		return vm.ToValue(n)
	case value.KindString:
		s, _ := v.AsString()
		return vm.ToValue(s)
	case value.KindList:
		items, _ := v.AsList()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = FromValue(vm, item)
		}
		return vm.NewArray(out...)
	case value.KindMap:
		m, _ := v.AsObject()
		obj := vm.NewObject()
		m.Range(func(key string, item value.Value) bool {
			_ = obj.Set(key, FromValue(vm, item))
			return true
		})
		return obj
	default:
		return goja.Null()
	}
}

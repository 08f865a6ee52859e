package value

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FromGo converts a Go value into a Value.
//
// Supported inputs are nil, Value, *Object, bool, string, int, int32,
// int64, float32, float64, json.Number, []any and map[string]any: the
// shapes produced by encoding/json and by goja's Export. Go maps have no
// order, so their keys are sorted.
func FromGo(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Object:
		return Map(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("value: invalid json number %q: %w", x, err)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromGo(item)
			if err != nil {
				return Null(), fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObjectSize(len(keys))
		for _, k := range keys {
			v, err := FromGo(x[k])
			if err != nil {
				return Null(), fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, v)
		}
		return Map(obj), nil
	}
	return Null(), fmt.Errorf("value: unsupported type %T", x)
}

// Go converts v into plain Go values: nil, bool, float64, string, []any and
// map[string]any. Key order is lost.
func (v Value) Go() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Go()
		}
		return items
	case KindMap:
		m := make(map[string]any, v.obj.Len())
		v.obj.Range(func(key string, val Value) bool {
			m[key] = val.Go()
			return true
		})
		return m
	default:
		return nil
	}
}

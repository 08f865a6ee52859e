// Package value implements the structured value tree exchanged between the
// scripting runtime and native command targets.
//
// A Value is one of null, bool, number, string, list or map. Maps keep their
// keys in insertion order, so a value converted from a script object and back
// enumerates its keys in the original order. The zero Value is null.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the lower-case name of the kind, as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable-by-convention tagged variant. Lists and maps share
// their backing storage when copied; use Clone for an independent copy.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a number value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a number value holding n.
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value holding items. A nil slice yields an empty list.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map returns a map value backed by obj. A nil obj yields an empty map.
func Map(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}
	return Value{kind: KindMap, obj: obj}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsInt returns the number held by v if it is integral and within int64 range.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) ||
		v.n < math.MinInt64 || v.n > math.MaxInt64 {
		return 0, false
	}
	return int64(v.n), true
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsList returns the items held by v. The slice must not be modified.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsObject returns the map held by v.
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindMap }

// Get returns the map entry for key, or null if v is not a map or has no
// such key.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null()
	}
	val, _ := v.obj.Get(key)
	return val
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return List(items...)
	case KindMap:
		obj := NewObjectSize(v.obj.Len())
		v.obj.Range(func(key string, val Value) bool {
			obj.Set(key, val.Clone())
			return true
		})
		return Map(obj)
	default:
		return v
	}
}

// Equal reports whether a and b hold the same tree. Map key order is not
// significant; NaN compares equal to NaN.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		equal := true
		a.obj.Range(func(key string, av Value) bool {
			bv, ok := b.obj.Get(key)
			equal = ok && Equal(av, bv)
			return equal
		})
		return equal
	}
	return false
}

// String renders v in a compact JSON-like form for logs and messages.
// Non-finite numbers are rendered as NaN, Infinity or -Infinity.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(formatNumber(v.n))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindList:
		sb.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.format(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		i := 0
		v.obj.Range(func(key string, val Value) bool {
			if i > 0 {
				sb.WriteByte(',')
			}
			i++
			sb.WriteString(strconv.Quote(key))
			sb.WriteByte(':')
			val.format(sb)
			return true
		})
		sb.WriteByte('}')
	default:
		fmt.Fprintf(sb, "<%s>", v.kind)
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

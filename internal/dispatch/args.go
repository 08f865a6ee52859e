package dispatch

import (
	"fmt"

	"github.com/joeycumines/hostbridge/internal/value"
)

// ArgsRoot is the path prefix used when naming argument fields in errors.
const ArgsRoot = "commandArgs"

// FieldKind is the expected shape of an argument field.
type FieldKind uint8

const (
	FieldAny FieldKind = iota
	FieldNull
	FieldBool
	FieldNumber
	FieldInteger
	FieldString
	FieldList
	FieldMap
)

func (k FieldKind) String() string {
	switch k {
	case FieldNull:
		return "null"
	case FieldBool:
		return "boolean"
	case FieldNumber:
		return "number"
	case FieldInteger:
		return "integer"
	case FieldString:
		return "string"
	case FieldList:
		return "list"
	case FieldMap:
		return "map"
	default:
		return "any"
	}
}

func (k FieldKind) accepts(v value.Value) bool {
	switch k {
	case FieldAny:
		return true
	case FieldNull:
		return v.IsNull()
	case FieldBool:
		return v.Kind() == value.KindBool
	case FieldNumber:
		return v.Kind() == value.KindNumber
	case FieldInteger:
		_, ok := v.AsInt()
		return ok
	case FieldString:
		return v.Kind() == value.KindString
	case FieldList:
		return v.Kind() == value.KindList
	case FieldMap:
		return v.Kind() == value.KindMap
	}
	return false
}

// Field declares one entry of the argument bag.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// ArgSpec describes the argument bag a command accepts. The zero ArgSpec
// accepts any map.
type ArgSpec struct {
	Fields []Field
	// Strict rejects keys not declared in Fields.
	Strict bool
}

// Args is shorthand for a non-strict ArgSpec.
func Args(fields ...Field) ArgSpec { return ArgSpec{Fields: fields} }

// StrictArgs is shorthand for a strict ArgSpec.
func StrictArgs(fields ...Field) ArgSpec { return ArgSpec{Fields: fields, Strict: true} }

// Required declares a required field.
func Required(name string, kind FieldKind) Field {
	return Field{Name: name, Kind: kind, Required: true}
}

// Optional declares an optional field. A null value counts as absent.
func Optional(name string, kind FieldKind) Field {
	return Field{Name: name, Kind: kind}
}

// Validate checks args against the spec, returning an *Error of kind
// ErrorArgumentShape naming the first offending field. Declared fields are
// checked in declaration order, then undeclared keys in argument order.
func (s ArgSpec) Validate(args value.Value) error {
	obj, ok := args.AsObject()
	if !ok {
		return NewArgumentError(ArgsRoot, "expected map, got %s", args.Kind())
	}
	for _, f := range s.Fields {
		v, present := obj.Get(f.Name)
		if !present || (v.IsNull() && !f.Required && f.Kind != FieldNull) {
			if f.Required {
				return NewArgumentError(fieldPath(f.Name), "required field is missing")
			}
			continue
		}
		if !f.Kind.accepts(v) {
			return NewArgumentError(fieldPath(f.Name), "expected %s, got %s", f.Kind, describe(v))
		}
	}
	if s.Strict {
		var err error
		obj.Range(func(key string, _ value.Value) bool {
			if !s.declares(key) {
				err = NewArgumentError(fieldPath(key), "unexpected field")
			}
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s ArgSpec) declares(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func fieldPath(name string) string {
	return ArgsRoot + "." + name
}

func describe(v value.Value) string {
	if v.Kind() == value.KindNumber {
		if _, ok := v.AsInt(); !ok {
			return fmt.Sprintf("number %s", v)
		}
	}
	return v.Kind().String()
}

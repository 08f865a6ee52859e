package value

import (
	"sort"

	"google.golang.org/protobuf/types/known/structpb"
)

// ToProto converts v into its google.protobuf.Value wire form.
// Protobuf structs are unordered, so map key order does not survive.
func (v Value) ToProto() *structpb.Value {
	switch v.kind {
	case KindBool:
		return structpb.NewBoolValue(v.b)
	case KindNumber:
		return structpb.NewNumberValue(v.n)
	case KindString:
		return structpb.NewStringValue(v.s)
	case KindList:
		items := make([]*structpb.Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.ToProto()
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items})
	case KindMap:
		return structpb.NewStructValue(v.ToProtoStruct())
	default:
		return structpb.NewNullValue()
	}
}

// ToProtoStruct converts a map value into a google.protobuf.Struct. Any
// other kind yields an empty struct.
func (v Value) ToProtoStruct() *structpb.Struct {
	fields := make(map[string]*structpb.Value, v.obj.Len())
	v.obj.Range(func(key string, val Value) bool {
		fields[key] = val.ToProto()
		return true
	})
	return &structpb.Struct{Fields: fields}
}

// FromProto converts a google.protobuf.Value. Struct keys are sorted.
func FromProto(pv *structpb.Value) Value {
	switch k := pv.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue)
	case *structpb.Value_NumberValue:
		return Number(k.NumberValue)
	case *structpb.Value_StringValue:
		return String(k.StringValue)
	case *structpb.Value_ListValue:
		src := k.ListValue.GetValues()
		items := make([]Value, len(src))
		for i, item := range src {
			items[i] = FromProto(item)
		}
		return List(items...)
	case *structpb.Value_StructValue:
		return FromProtoStruct(k.StructValue)
	default:
		return Null()
	}
}

// FromProtoStruct converts a google.protobuf.Struct into a map value.
func FromProtoStruct(s *structpb.Struct) Value {
	fields := s.GetFields()
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	obj := NewObjectSize(len(keys))
	for _, key := range keys {
		obj.Set(key, FromProto(fields[key]))
	}
	return Map(obj)
}

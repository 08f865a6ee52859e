package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
)

// LogValue implements slog.LogValuer. Scalars log as themselves; lists and
// maps log as ordered JSON, or in String form if they hold non-finite
// numbers.
func (v Value) LogValue() slog.Value {
	switch v.kind {
	case KindBool:
		return slog.BoolValue(v.b)
	case KindNumber:
		return slog.Float64Value(v.n)
	case KindString:
		return slog.StringValue(v.s)
	case KindList, KindMap:
		data, err := v.MarshalJSON()
		if err != nil {
			return slog.StringValue(v.String())
		}
		return slog.AnyValue(json.RawMessage(data))
	default:
		return slog.AnyValue(nil)
	}
}

// MarshalJSON implements json.Marshaler, emitting map keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool, KindString:
		b, err := json.Marshal(v.Go())
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("value: cannot encode %s as JSON", formatNumber(v.n))
		}
		b, err := json.Marshal(v.n)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		var err error
		i := 0
		v.obj.Range(func(key string, val Value) bool {
			if i > 0 {
				buf.WriteByte(',')
			}
			i++
			k, _ := json.Marshal(key)
			buf.Write(k)
			buf.WriteByte(':')
			err = val.writeJSON(buf)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("value: trailing data after JSON value")
	}
	*v = parsed
	return nil
}

// ParseJSON decodes a single JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return FromGo(t)
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return List(items...), nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("value: unexpected object key %v", keyTok)
				}
				val, err := decodeJSON(dec)
				if err != nil {
					return Null(), err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Map(obj), nil
		}
	}
	return Null(), fmt.Errorf("value: unexpected JSON token %v", tok)
}

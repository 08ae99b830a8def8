package eventsourcing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Kind tags the dynamic type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Value is a decoded payload value. Numbers keep their literal text so they
// round-trip without precision loss.
type Value struct {
	kind Kind
	text string
	b    bool
	obj  map[string]Value
	arr  []Value
}

func Null() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, text: s} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(i, 10)} }
func Float(f float64) Value { return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'g', -1, 64)} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

// ValueOf converts a native Go value into a Value. Unknown types fall back to
// their fmt representation as a string.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case *string:
		if x == nil {
			return Null()
		}
		return String(*x)
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return Value{kind: KindNumber, text: strconv.FormatUint(uint64(x), 10)}
	case uint32:
		return Int(int64(x))
	case uint64:
		return Value{kind: KindNumber, text: strconv.FormatUint(x, 10)}
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case json.Number:
		return Value{kind: KindNumber, text: x.String()}
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano))
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			fields[k] = ValueOf(item)
		}
		return Object(fields)
	case map[string]Value:
		return Object(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = ValueOf(item)
		}
		return Array(items...)
	case []string:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = String(item)
		}
		return Array(items...)
	case fmt.Stringer:
		return String(x.String())
	}
	return String(fmt.Sprint(v))
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Items() []Value { return v.arr }

// Fields returns the members of an object value, or nil for any other kind.
func (v Value) Fields() map[string]Value { return v.obj }

// Text returns the scalar as plain text. Strings come back verbatim, numbers
// as their literal and booleans as "true"/"false". Null, objects and arrays
// report false.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.text, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	return f, err == nil
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Interface converts the value back into plain Go values (string, float64,
// bool, nil, map[string]any, []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindNumber:
		f, _ := v.Float()
		return f
	case KindBool:
		return v.b
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	if s, ok := v.Text(); ok {
		return s
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return v.kind.String()
	}
	return string(b)
}

// Equal reports deep equality. Numbers compare by value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.text == o.text
	case KindNumber:
		a, aok := v.Float()
		b, bok := o.Float()
		return aok && bok && a == b
	case KindBool:
		return v.b == o.b
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, item := range v.obj {
			other, ok := o.obj[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) clone() Value {
	switch v.kind {
	case KindObject:
		fields := make(map[string]Value, len(v.obj))
		for k, item := range v.obj {
			fields[k] = item.clone()
		}
		return Object(fields)
	case KindArray:
		items := make([]Value, len(v.arr))
		for i, item := range v.arr {
			items[i] = item.clone()
		}
		return Array(items...)
	}
	return v
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindObject:
		return json.Marshal(v.obj)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	}
	return nil, fmt.Errorf("marshal value: unknown kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("unmarshal value: invalid json")
	}
	*v = fromResult(gjson.ParseBytes(data))
	return nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Value{kind: KindNumber, text: strings.TrimSpace(r.Raw)}
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			items := []Value{}
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromResult(item))
				return true
			})
			return Array(items...)
		}
		fields := map[string]Value{}
		r.ForEach(func(key, item gjson.Result) bool {
			fields[key.String()] = fromResult(item)
			return true
		})
		return Object(fields)
	}
	return Null()
}

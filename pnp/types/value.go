package types

import (
	stdjson "encoding/json"
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ValueKind is the discriminant of a Value.
type ValueKind int

const (
	// KindEmpty is the zero Value: nothing populated.
	KindEmpty ValueKind = iota
	// KindScalar holds an integer, float or boolean.
	KindScalar
	// KindString holds a pre-serialized string.
	KindString
	// KindObject holds a Serializable.
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	}
	return "empty"
}

// Serializable is implemented by objects that render themselves to a string,
// normally a JSON document.
type Serializable interface {
	Serialize() (string, error)
}

// Value holds exactly one of a scalar, a string or a Serializable object.
// It is immutable: replace the whole Value instead of editing it.
type Value struct {
	kind   ValueKind
	scalar interface{}
	str    string
	obj    Serializable
}

func FromInt(v int) Value         { return Value{kind: KindScalar, scalar: int64(v)} }
func FromInt32(v int32) Value     { return Value{kind: KindScalar, scalar: int64(v)} }
func FromInt64(v int64) Value     { return Value{kind: KindScalar, scalar: v} }
func FromUint(v uint) Value       { return Value{kind: KindScalar, scalar: uint64(v)} }
func FromUint64(v uint64) Value   { return Value{kind: KindScalar, scalar: v} }
func FromFloat32(v float32) Value { return Value{kind: KindScalar, scalar: float64(v)} }
func FromFloat64(v float64) Value { return Value{kind: KindScalar, scalar: v} }
func FromBool(v bool) Value       { return Value{kind: KindScalar, scalar: v} }
func FromString(v string) Value   { return Value{kind: KindString, str: v} }

// FromSerializable boxes an object. A nil object gives the empty Value.
func FromSerializable(v Serializable) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: KindObject, obj: v}
}

// FromCollection boxes a nested property collection.
func FromCollection(c *PropertyCollection) Value {
	if c == nil {
		return Value{}
	}
	return Value{kind: KindObject, obj: c}
}

// FromRawJSON boxes an already encoded JSON document.
func FromRawJSON(raw []byte) Value {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Value{kind: KindObject, obj: RawJSON(cp)}
}

// FromObject boxes any JSON-serializable Go value (struct, map, slice).
func FromObject(v interface{}) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: KindObject, obj: jsonObject{v: v}}
}

// FromInterface picks the variant matching the dynamic type of v.
func FromInterface(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case *Value:
		if t == nil {
			return Value{}
		}
		return *t
	case bool:
		return FromBool(t)
	case int:
		return FromInt(t)
	case int8:
		return FromInt64(int64(t))
	case int16:
		return FromInt64(int64(t))
	case int32:
		return FromInt32(t)
	case int64:
		return FromInt64(t)
	case uint:
		return FromUint(t)
	case uint8:
		return FromUint64(uint64(t))
	case uint16:
		return FromUint64(uint64(t))
	case uint32:
		return FromUint64(uint64(t))
	case uint64:
		return FromUint64(t)
	case float32:
		return FromFloat32(t)
	case float64:
		return FromFloat64(t)
	case stdjson.Number:
		return numberValue(t)
	case string:
		return FromString(t)
	case *PropertyCollection:
		return FromCollection(t)
	case Serializable:
		return FromSerializable(t)
	}
	return FromObject(v)
}

func numberValue(n stdjson.Number) Value {
	if i, err := n.Int64(); err == nil {
		return FromInt64(i)
	}
	if f, err := n.Float64(); err == nil {
		return FromFloat64(f)
	}
	return FromString(n.String())
}

// Kind returns the populated variant.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether nothing is populated.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// IsDefault reports whether the value is empty, a zero scalar or an empty string.
func (v Value) IsDefault() bool {
	switch v.kind {
	case KindEmpty:
		return true
	case KindString:
		return v.str == ""
	case KindScalar:
		switch t := v.scalar.(type) {
		case int64:
			return t == 0
		case uint64:
			return t == 0
		case float64:
			return t == 0
		case bool:
			return !t
		}
	}
	return false
}

// ReturnAsString is true iff the string or the object variant is populated.
func (v Value) ReturnAsString() bool {
	return v.kind == KindString || v.kind == KindObject
}

// Int64 returns the scalar as an integer when it is integral.
func (v Value) Int64() (int64, bool) {
	switch t := v.scalar.(type) {
	case int64:
		return t, true
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t), true
		}
	case float64:
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return int64(t), true
		}
	}
	return 0, false
}

// Float64 returns any numeric scalar as a float.
func (v Value) Float64() (float64, bool) {
	switch t := v.scalar.(type) {
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// Bool returns the boolean scalar.
func (v Value) Bool() (bool, bool) {
	b, ok := v.scalar.(bool)
	return b, ok
}

// IsNumber reports whether the scalar is numeric.
func (v Value) IsNumber() bool {
	_, ok := v.Float64()
	return ok
}

// Str returns the string variant.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Object returns the object variant.
func (v Value) Object() (Serializable, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Collection returns the object variant when it is a nested property collection.
func (v Value) Collection() (*PropertyCollection, bool) {
	c, ok := v.obj.(*PropertyCollection)
	return c, ok
}

// Interface returns the boxed Go value.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindString:
		return v.str
	case KindObject:
		return v.obj
	}
	return nil
}

// GetString renders the value as text: the serialized object, the raw string,
// or the formatted scalar.
func (v Value) GetString() (string, error) {
	switch v.kind {
	case KindObject:
		return v.obj.Serialize()
	case KindString:
		return v.str, nil
	case KindScalar:
		return formatScalar(v.scalar), nil
	}
	return "", nil
}

func (v Value) String() string {
	s, err := v.GetString()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return s
}

func formatScalar(s interface{}) string {
	switch t := s.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(s)
}

// MarshalJSON renders the value as a JSON fragment. Objects whose serialized
// form is not valid JSON are emitted as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		if f, ok := v.scalar.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return nil, NewSerializationError("marshal value", errors.Errorf("unsupported float %v", f))
		}
		return json.Marshal(v.scalar)
	case KindString:
		return json.Marshal(v.str)
	case KindObject:
		s, err := v.obj.Serialize()
		if err != nil {
			return nil, NewSerializationError("serialize object", err)
		}
		if jsoniter.Valid([]byte(s)) {
			return []byte(s), nil
		}
		return json.Marshal(s)
	}
	return []byte("null"), nil
}

// Encode renders the value like MarshalJSON, passing opts down to nested
// collections and using opts.Marshal for boxed Go objects.
func (v Value) Encode(opts EncodeOptions) ([]byte, error) {
	switch t := v.obj.(type) {
	case *PropertyCollection:
		return t.Encode(opts)
	case jsonObject:
		if opts.Marshal != nil {
			data, err := opts.Marshal(t.v)
			if err != nil {
				return nil, NewSerializationError("marshal object", err)
			}
			return data, nil
		}
	}
	return v.MarshalJSON()
}

// UnmarshalJSON fills the value from a JSON fragment.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Decode converts the value into out through its JSON form.
func (v Value) Decode(out interface{}) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewSerializationError("decode value", err)
	}
	return nil
}

// SameShape reports whether other could replace v without changing its JSON type.
// An empty v accepts anything.
func (v Value) SameShape(other Value) bool {
	if v.kind == KindEmpty || other.kind == KindEmpty {
		return true
	}
	if v.kind != other.kind {
		return false
	}
	if v.kind == KindScalar {
		_, vb := v.scalar.(bool)
		_, ob := other.scalar.(bool)
		return vb == ob
	}
	return true
}

// RawJSON is a Serializable holding encoded JSON.
type RawJSON []byte

func (r RawJSON) Serialize() (string, error) { return string(r), nil }

type jsonObject struct {
	v interface{}
}

func (o jsonObject) Serialize() (string, error) {
	data, err := json.Marshal(o.v)
	if err != nil {
		return "", NewSerializationError("marshal object", err)
	}
	return string(data), nil
}

package types

import (
	"bytes"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	// VersionKey carries the service-assigned version of a patch.
	VersionKey = "$version"
	// ComponentMarkerKey and ComponentMarkerValue tag a nested object as a component.
	ComponentMarkerKey   = "__t"
	ComponentMarkerValue = "c"
)

// PropertyCollection is an insertion-ordered map from property name to Value
// with the version assigned by the service.
type PropertyCollection struct {
	version    int64
	hasVersion bool
	// set when the collection carries the component marker.
	component bool
	keys      []string
	values    map[string]Value
}

// NewPropertyCollection creates an empty, unversioned collection.
func NewPropertyCollection() *PropertyCollection {
	return &PropertyCollection{values: make(map[string]Value)}
}

// NewVersionedCollection creates an empty collection carrying version.
func NewVersionedCollection(version int64) *PropertyCollection {
	c := NewPropertyCollection()
	c.version = version
	c.hasVersion = true
	return c
}

// NewComponentCollection creates an empty collection tagged with the component marker.
func NewComponentCollection() *PropertyCollection {
	c := NewPropertyCollection()
	c.component = true
	return c
}

// Version returns the service-assigned version, 0 when absent.
func (c *PropertyCollection) Version() int64 {
	if c == nil {
		return 0
	}
	return c.version
}

// HasVersion reports whether a version was present.
func (c *PropertyCollection) HasVersion() bool {
	return c != nil && c.hasVersion
}

// IsComponent reports whether the collection carries the component marker.
func (c *PropertyCollection) IsComponent() bool {
	return c != nil && c.component
}

// Set inserts or replaces name. Replacement keeps the original position.
func (c *PropertyCollection) Set(name string, v Value) error {
	if name == "" {
		return InvalidArgument("property name must not be empty")
	}
	if c.values == nil {
		c.values = make(map[string]Value)
	}
	if _, exist := c.values[name]; !exist {
		c.keys = append(c.keys, name)
	}
	c.values[name] = v
	return nil
}

// Get returns the value stored under name.
func (c *PropertyCollection) Get(name string) (Value, bool) {
	if c == nil {
		return Value{}, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Has reports whether name is present.
func (c *PropertyCollection) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Len returns the number of properties.
func (c *PropertyCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Keys returns the property names in insertion order.
func (c *PropertyCollection) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Range calls fn for every property in insertion order until fn returns false.
func (c *PropertyCollection) Range(fn func(name string, v Value) bool) {
	if c == nil {
		return
	}
	for _, key := range c.keys {
		if !fn(key, c.values[key]) {
			return
		}
	}
}

// Serialize renders the collection as a JSON object.
func (c *PropertyCollection) Serialize() (string, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeOptions tune how a collection is written.
type EncodeOptions struct {
	// OmitEmpty drops entries holding an empty Value.
	OmitEmpty bool
	// OmitDefaults also drops zero scalars and empty strings.
	OmitDefaults bool
	// Marshal encodes the Go objects boxed by FromObject when set.
	Marshal func(v interface{}) ([]byte, error)
}

// MarshalJSON renders the properties in insertion order. The version is
// metadata and is not written.
func (c *PropertyCollection) MarshalJSON() ([]byte, error) {
	return c.Encode(EncodeOptions{})
}

// MarshalJSONOmitEmpty is MarshalJSON without the entries holding an empty Value,
// applied recursively to nested collections.
func (c *PropertyCollection) MarshalJSONOmitEmpty() ([]byte, error) {
	return c.Encode(EncodeOptions{OmitEmpty: true})
}

// Encode renders the collection with opts, applied recursively to nested
// collections.
func (c *PropertyCollection) Encode(opts EncodeOptions) ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	writeKey := func(key string) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		return nil
	}

	if c.component {
		if err := writeKey(ComponentMarkerKey); err != nil {
			return nil, NewSerializationError("marshal key", err)
		}
		buf.WriteString(`"` + ComponentMarkerValue + `"`)
	}

	for _, key := range c.keys {
		v := c.values[key]
		if (opts.OmitEmpty || opts.OmitDefaults) && v.IsEmpty() {
			continue
		}
		if opts.OmitDefaults && v.IsDefault() {
			continue
		}
		if err := writeKey(key); err != nil {
			return nil, NewSerializationError("marshal key", err)
		}

		data, err := v.Encode(opts)
		if err != nil {
			return nil, errors.Wrapf(err, "property %q", key)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON parses an ordered JSON object into the collection.
func (c *PropertyCollection) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePropertyCollection(data)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// ParsePropertyCollection parses a JSON object keeping the order of its keys.
// "$version" becomes the collection version, other "$" metadata keys and the
// component marker are not stored as properties. Nested objects become nested
// collections.
func ParsePropertyCollection(data []byte) (*PropertyCollection, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, NewSerializationError("parse property collection", errors.New("payload is not a JSON object"))
	}

	c := readCollection(iter)
	if err := finish(iter); err != nil {
		return nil, NewSerializationError("parse property collection", err)
	}
	return c, nil
}

// ParseValue parses a single JSON fragment into a Value.
func ParseValue(data []byte) (Value, error) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigCompatibleWithStandardLibrary, data)
	v := readValue(iter)
	if err := finish(iter); err != nil {
		return Value{}, NewSerializationError("parse value", err)
	}
	return v, nil
}

// finish checks that the document ended after one value. A scalar running to
// the end of the buffer leaves io.EOF behind, which is not a failure.
func finish(iter *jsoniter.Iterator) error {
	if iter.Error == nil {
		iter.WhatIsNext()
		if iter.Error == nil {
			return errors.New("unexpected data after value")
		}
	}
	if iter.Error == io.EOF {
		return nil
	}
	return iter.Error
}

func readCollection(iter *jsoniter.Iterator) *PropertyCollection {
	c := NewPropertyCollection()
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		switch {
		case key == VersionKey:
			if it.WhatIsNext() == jsoniter.NumberValue {
				c.version = it.ReadInt64()
				c.hasVersion = true
			} else {
				it.Skip()
			}
		case key == ComponentMarkerKey:
			if it.WhatIsNext() == jsoniter.StringValue {
				c.component = it.ReadString() == ComponentMarkerValue
			} else {
				it.Skip()
			}
		case strings.HasPrefix(key, "$"):
			it.Skip()
		default:
			v := readValue(it)
			if _, exist := c.values[key]; !exist {
				c.keys = append(c.keys, key)
			}
			c.values[key] = v
		}
		return it.Error == nil
	})
	return c
}

func readValue(it *jsoniter.Iterator) Value {
	switch it.WhatIsNext() {
	case jsoniter.NilValue:
		it.ReadNil()
		return Value{}
	case jsoniter.BoolValue:
		return FromBool(it.ReadBool())
	case jsoniter.NumberValue:
		return numberValue(it.ReadNumber())
	case jsoniter.StringValue:
		return FromString(it.ReadString())
	case jsoniter.ObjectValue:
		return FromCollection(readCollection(it))
	case jsoniter.ArrayValue:
		return FromRawJSON(it.SkipAndReturnBytes())
	}
	if it.Error == nil {
		it.ReportError("read value", "unexpected token")
	}
	return Value{}
}

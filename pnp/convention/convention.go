package convention

import (
	"fmt"
	"reflect"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/jwzl/edgepnp/pnp/types"
)

const (
	ContentTypeJSON = "application/json"
	EncodingUTF8    = "utf-8"
)

// Convention turns values into wire bytes. Every outbound payload goes
// through one.
type Convention interface {
	ContentType() string
	ContentEncoding() string
	SerializeToString(v interface{}) (string, error)
	EncodeToBytes(s string) ([]byte, error)
	GetPayloadBytes(v interface{}) ([]byte, error)
}

// JSONConvention serializes with a JSON codec and encodes the text with a
// configurable charset.
type JSONConvention struct {
	contentType     string
	contentEncoding string
	omitEmpty       bool
	omitDefaults    bool
	encoder         encoding.Encoding
	api             jsoniter.API
}

// Option configures a JSONConvention.
type Option func(*JSONConvention) error

// WithOmitEmpty drops empty values from property collections on write.
func WithOmitEmpty(omit bool) Option {
	return func(c *JSONConvention) error {
		c.omitEmpty = omit
		return nil
	}
}

// WithOmitDefaults drops default values on write: empty values, zero scalars
// and empty strings in property collections, and zero-valued struct fields.
func WithOmitDefaults(omit bool) Option {
	return func(c *JSONConvention) error {
		c.omitDefaults = omit
		return nil
	}
}

// WithContentType overrides the advertised content type.
func WithContentType(contentType string) Option {
	return func(c *JSONConvention) error {
		if contentType == "" {
			return types.InvalidArgument("content type must not be empty")
		}
		c.contentType = contentType
		return nil
	}
}

// WithContentEncoding selects the charset by its WHATWG name, e.g. "utf-16le".
func WithContentEncoding(name string) Option {
	return func(c *JSONConvention) error {
		enc, err := htmlindex.Get(name)
		if err != nil {
			return errors.Wrapf(types.ErrInvalidArgument, "content encoding %q: %v", name, err)
		}
		canonical, err := htmlindex.Name(enc)
		if err != nil {
			canonical = strings.ToLower(name)
		}
		c.contentEncoding = canonical
		if canonical == EncodingUTF8 {
			c.encoder = nil
		} else {
			c.encoder = enc
		}
		return nil
	}
}

// NewJSONConvention builds a JSON convention, UTF-8 and application/json unless
// overridden.
func NewJSONConvention(opts ...Option) (*JSONConvention, error) {
	c := &JSONConvention{
		contentType:     ContentTypeJSON,
		contentEncoding: EncodingUTF8,
		api:             jsoniter.ConfigCompatibleWithStandardLibrary,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.omitDefaults {
		c.api = omitDefaultsAPI
	}
	return c, nil
}

func (c *JSONConvention) ContentType() string     { return c.contentType }
func (c *JSONConvention) ContentEncoding() string { return c.contentEncoding }

// OmitEmpty reports whether empty values are dropped on write.
func (c *JSONConvention) OmitEmpty() bool { return c.omitEmpty }

// OmitDefaults reports whether default values are dropped on write.
func (c *JSONConvention) OmitDefaults() bool { return c.omitDefaults }

func (c *JSONConvention) encodeOptions() types.EncodeOptions {
	return types.EncodeOptions{
		OmitEmpty:    c.omitEmpty,
		OmitDefaults: c.omitDefaults,
		Marshal:      c.api.Marshal,
	}
}

// SerializeToString renders v as JSON text.
func (c *JSONConvention) SerializeToString(v interface{}) (string, error) {
	var (
		data []byte
		err  error
	)

	switch t := v.(type) {
	case *types.PropertyCollection:
		data, err = t.Encode(c.encodeOptions())
	case types.Value:
		data, err = t.Encode(c.encodeOptions())
	case string:
		return t, nil
	default:
		data, err = c.api.Marshal(v)
	}

	if err != nil {
		if errors.Is(err, types.ErrSerialization) {
			return "", err
		}
		return "", types.NewSerializationError("serialize", err)
	}
	return string(data), nil
}

// EncodeToBytes encodes s with the configured charset.
func (c *JSONConvention) EncodeToBytes(s string) ([]byte, error) {
	if c.encoder == nil {
		return []byte(s), nil
	}
	data, err := c.encoder.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, types.NewSerializationError("encode "+c.contentEncoding, err)
	}
	return data, nil
}

// GetPayloadBytes is EncodeToBytes(SerializeToString(v)).
func (c *JSONConvention) GetPayloadBytes(v interface{}) ([]byte, error) {
	s, err := c.SerializeToString(v)
	if err != nil {
		return nil, err
	}
	return c.EncodeToBytes(s)
}

// DecodeBytes turns payload bytes back into text. The inverse of EncodeToBytes.
func (c *JSONConvention) DecodeBytes(data []byte) (string, error) {
	if c.encoder == nil {
		return string(data), nil
	}
	out, err := c.encoder.NewDecoder().Bytes(data)
	if err != nil {
		return "", types.NewSerializationError("decode "+c.contentEncoding, err)
	}
	return string(out), nil
}

// DefaultProperty returns the convention for twin property patches: JSON,
// UTF-8, empty values dropped.
func DefaultProperty() Convention {
	c, _ := NewJSONConvention(WithOmitEmpty(true))
	return c
}

// DefaultTelemetry returns the convention for telemetry payloads: JSON, UTF-8.
func DefaultTelemetry() Convention {
	c, _ := NewJSONConvention()
	return c
}

var omitDefaultsAPI = func() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&omitDefaultsExtension{})
	return api
}()

// omitDefaultsExtension marks every struct field omitempty.
type omitDefaultsExtension struct {
	jsoniter.DummyExtension
}

func (e *omitDefaultsExtension) UpdateStructDescriptor(desc *jsoniter.StructDescriptor) {
	for _, binding := range desc.Fields {
		binding.Field = omitEmptyField{binding.Field}
	}
}

// omitEmptyField reports its json tag with the omitempty option added.
type omitEmptyField struct {
	reflect2.StructField
}

func (f omitEmptyField) Tag() reflect.StructTag {
	tag := f.StructField.Tag()
	value, _ := tag.Lookup("json")
	for _, opt := range strings.Split(value, ",")[1:] {
		if opt == "omitempty" {
			return tag
		}
	}
	return reflect.StructTag(fmt.Sprintf("json:%q", value+",omitempty"))
}

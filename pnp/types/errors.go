package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for nil/empty identifiers or names.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicateRegistration is returned when a component or property name collides.
	ErrDuplicateRegistration = errors.New("duplicate registration")
	// ErrDuplicateComponent is a DuplicateRegistration on a component name.
	ErrDuplicateComponent = errors.New("duplicate component")
	// ErrDuplicateProperty is a DuplicateRegistration on a property name.
	ErrDuplicateProperty = errors.New("duplicate property")
	// ErrSerialization is returned when a convention cannot encode/decode a value.
	ErrSerialization = errors.New("serialization failed")
	// ErrCommandNotFound is returned when no handler and no default handler exist.
	ErrCommandNotFound = errors.New("command not found")
	// ErrRegistrySealed is returned for registration after the first dispatch.
	ErrRegistrySealed = errors.New("registry is sealed")
	// ErrNotConnected is returned by outbound operations while the transport is down.
	ErrNotConnected = errors.New("not connected")
)

const (
	KindComponent = "component"
	KindProperty  = "property"
	KindCommand   = "command"
)

// DuplicateError describes a name collision in the component registry.
type DuplicateError struct {
	Kind  string
	Scope string
	Name  string
}

func (e *DuplicateError) Error() string {
	scope := e.Scope
	if scope == "" {
		scope = "<root>"
	}
	return fmt.Sprintf("%s %q already registered under %s", e.Kind, e.Name, scope)
}

// Is reports whether target is one of the duplicate sentinels this error stands for.
func (e *DuplicateError) Is(target error) bool {
	switch target {
	case ErrDuplicateRegistration:
		return true
	case ErrDuplicateComponent:
		return e.Kind == KindComponent
	case ErrDuplicateProperty:
		return e.Kind == KindProperty
	}
	return false
}

// SerializationError wraps the codec failure behind ErrSerialization.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// NewSerializationError builds a SerializationError for op.
func NewSerializationError(op string, err error) error {
	return &SerializationError{Op: op, Err: err}
}

// AckError lets a writable-property handler choose the ack code and description
// written back for a rejected update.
type AckError struct {
	Code        int
	Description string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("ack %d: %s", e.Code, e.Description)
}

// Reject returns an AckError carrying code and description.
func Reject(code int, description string) error {
	return &AckError{Code: code, Description: description}
}

// InvalidArgument wraps ErrInvalidArgument with a message.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

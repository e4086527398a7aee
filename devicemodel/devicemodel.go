// Package devicemodel loads YAML device models and declares their
// components, properties and commands into a component registry.
package devicemodel

import (
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/types"
)

// Model describes one device.
type Model struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description,omitempty"`
	Components  []Component `yaml:"components"`
	// DefaultCommand names the binder handler used for unmatched commands.
	DefaultCommand string `yaml:"default-command,omitempty"`
}

// Component is a named group of properties and commands. The empty name is
// the root component.
type Component struct {
	Name       string     `yaml:"name"`
	Properties []Property `yaml:"properties,omitempty"`
	Commands   []Command  `yaml:"commands,omitempty"`
}

type Property struct {
	Name     string      `yaml:"name"`
	Writable bool        `yaml:"writable,omitempty"`
	Initial  interface{} `yaml:"initial,omitempty"`
	// Handler defaults to Name.
	Handler string `yaml:"handler,omitempty"`
}

type Command struct {
	Name    string `yaml:"name"`
	Handler string `yaml:"handler,omitempty"`
}

// Binder resolves the handler names of a model to application code.
type Binder interface {
	WritableHandler(componentName, handler string) (component.WritablePropertyHandler, bool)
	CommandHandler(componentName, handler string) (component.CommandHandler, interface{}, bool)
}

// Load reads and parses the model file at path.
func Load(path string) (*Model, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read device model %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML device model and checks its names.
func Parse(data []byte) (*Model, error) {
	m := &Model{}
	if err := yaml.UnmarshalStrict(data, m); err != nil {
		return nil, types.NewSerializationError("parse device model", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) validate() error {
	components := make(map[string]bool)
	for _, c := range m.Components {
		if components[c.Name] {
			return &types.DuplicateError{Kind: types.KindComponent, Name: c.Name}
		}
		components[c.Name] = true

		names := make(map[string]bool)
		for _, p := range c.Properties {
			if p.Name == "" {
				return types.InvalidArgument("component %q: property without name", c.Name)
			}
			if names[p.Name] {
				return &types.DuplicateError{Kind: types.KindProperty, Scope: c.Name, Name: p.Name}
			}
			names[p.Name] = true
		}
		for _, cmd := range c.Commands {
			if cmd.Name == "" {
				return types.InvalidArgument("component %q: command without name", c.Name)
			}
			if _, err := types.BuildCommandName(c.Name, cmd.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Declare registers every component, property and command of the model.
// Writable properties and commands need a binder handler.
func (m *Model) Declare(registry *component.Registry, binder Binder) error {
	if registry == nil {
		return types.InvalidArgument("registry is nil")
	}

	for _, c := range m.Components {
		if c.Name != "" {
			if _, err := registry.RegisterComponent(c.Name); err != nil {
				return err
			}
		}

		for _, p := range c.Properties {
			initial, err := InitialValue(p.Initial)
			if err != nil {
				return errors.Wrapf(err, "property %s", p.Name)
			}
			if !p.Writable {
				if err := registry.AddProperty(c.Name, p.Name, initial); err != nil {
					return err
				}
				continue
			}

			handler, ok := bindWritable(binder, c.Name, handlerName(p.Handler, p.Name))
			if !ok {
				return types.InvalidArgument("no handler %q for writable property %s", handlerName(p.Handler, p.Name), p.Name)
			}
			if err := registry.AddWritableProperty(c.Name, p.Name, initial, handler); err != nil {
				return err
			}
		}

		for _, cmd := range c.Commands {
			handler, userContext, ok := bindCommand(binder, c.Name, handlerName(cmd.Handler, cmd.Name))
			if !ok {
				return types.InvalidArgument("no handler %q for command %s", handlerName(cmd.Handler, cmd.Name), cmd.Name)
			}
			if err := registry.RegisterCommandHandler(c.Name, cmd.Name, handler, userContext); err != nil {
				return err
			}
		}
		klog.V(2).Infof("component %q declared: %d properties, %d commands", c.Name, len(c.Properties), len(c.Commands))
	}

	if m.DefaultCommand != "" {
		handler, userContext, ok := bindCommand(binder, "", m.DefaultCommand)
		if !ok {
			return types.InvalidArgument("no handler %q for the default command", m.DefaultCommand)
		}
		if err := registry.RegisterDefaultCommandHandler(handler, userContext); err != nil {
			return err
		}
	}
	return nil
}

func handlerName(handler, name string) string {
	if handler != "" {
		return handler
	}
	return name
}

func bindWritable(binder Binder, componentName, handler string) (component.WritablePropertyHandler, bool) {
	if binder == nil {
		return nil, false
	}
	return binder.WritableHandler(componentName, handler)
}

func bindCommand(binder Binder, componentName, handler string) (component.CommandHandler, interface{}, bool) {
	if binder == nil {
		return nil, nil, false
	}
	return binder.CommandHandler(componentName, handler)
}

// InitialValue converts a decoded YAML value into a Value. YAML mappings
// become nested property collections with sorted keys.
func InitialValue(v interface{}) (types.Value, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		keys := make([]string, 0, len(t))
		items := make(map[string]interface{}, len(t))
		for k, item := range t {
			key := fmt.Sprint(k)
			keys = append(keys, key)
			items[key] = item
		}
		sort.Strings(keys)

		c := types.NewPropertyCollection()
		for _, key := range keys {
			value, err := InitialValue(items[key])
			if err != nil {
				return types.Value{}, err
			}
			if err := c.Set(key, value); err != nil {
				return types.Value{}, err
			}
		}
		return types.FromCollection(c), nil
	case []interface{}:
		items := make([]interface{}, 0, len(t))
		for _, item := range t {
			items = append(items, normalize(item))
		}
		return types.FromObject(items), nil
	}
	return types.FromInterface(v), nil
}

// normalize turns YAML mappings into JSON-encodable maps.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			m[fmt.Sprint(k)] = normalize(item)
		}
		return m
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
	}
	return v
}

package component

import (
	"context"
	"sync"

	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/types"
)

// WritablePropertyHandler applies a desired update and returns the settled
// value. Returning a *types.AckError chooses the ack code and description.
type WritablePropertyHandler func(ctx context.Context, update *types.WritablePropertyUpdate) (*types.WritablePropertyResult, error)

// CommandHandler serves one command invocation. userContext is the value
// given at registration.
type CommandHandler func(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error)

// Property is a declared property.
type Property struct {
	Name     string
	Initial  types.Value
	Writable bool
}

type commandEntry struct {
	handler     CommandHandler
	userContext interface{}
}

// Component is a node of the registry tree. The root has an empty name.
type Component struct {
	name     string
	parent   *Component
	children map[string]*Component

	propertyNames []string
	properties    map[string]*Property
	writables     map[string]WritablePropertyHandler
	commands      map[string]*commandEntry
}

func newComponent(name string, parent *Component) *Component {
	return &Component{
		name:       name,
		parent:     parent,
		children:   make(map[string]*Component),
		properties: make(map[string]*Property),
		writables:  make(map[string]WritablePropertyHandler),
		commands:   make(map[string]*commandEntry),
	}
}

// Name returns the component name, empty for the root.
func (c *Component) Name() string { return c.name }

// Parent returns the enclosing component, nil for the root.
func (c *Component) Parent() *Component { return c.parent }

// IsRoot reports whether c is the implicit root.
func (c *Component) IsRoot() bool { return c.parent == nil }

// Property returns a declared property.
func (c *Component) Property(name string) (*Property, bool) {
	p, ok := c.properties[name]
	return p, ok
}

// Properties returns the declared properties in declaration order.
func (c *Component) Properties() []*Property {
	props := make([]*Property, 0, len(c.propertyNames))
	for _, name := range c.propertyNames {
		props = append(props, c.properties[name])
	}
	return props
}

// Registry holds the component tree, the command table and the default
// command handler. It is written during startup and read-only once sealed.
type Registry struct {
	sync.RWMutex
	root           *Component
	sealed         bool
	defaultHandler *commandEntry
}

// NewRegistry creates a registry holding only the root component.
func NewRegistry() *Registry {
	return &Registry{root: newComponent("", nil)}
}

// Root returns the implicit root component.
func (r *Registry) Root() *Component { return r.root }

// Seal makes the registry read-only. Sealing twice is harmless.
func (r *Registry) Seal() {
	r.Lock()
	defer r.Unlock()
	if !r.sealed {
		klog.V(2).Infof("component registry sealed")
	}
	r.sealed = true
}

// Sealed reports whether registration is closed.
func (r *Registry) Sealed() bool {
	r.RLock()
	defer r.RUnlock()
	return r.sealed
}

// RegisterComponent adds a named component under the root.
func (r *Registry) RegisterComponent(name string) (*Component, error) {
	return r.RegisterSubComponent(nil, name)
}

// RegisterSubComponent adds a named component under parent, the root when nil.
func (r *Registry) RegisterSubComponent(parent *Component, name string) (*Component, error) {
	if name == "" {
		return nil, types.InvalidArgument("component name must not be empty")
	}
	if parent == nil {
		parent = r.root
	}

	r.Lock()
	defer r.Unlock()
	if r.sealed {
		return nil, types.ErrRegistrySealed
	}
	if _, exist := parent.children[name]; exist {
		return nil, &types.DuplicateError{Kind: types.KindComponent, Scope: parent.name, Name: name}
	}

	c := newComponent(name, parent)
	parent.children[name] = c
	klog.V(4).Infof("component %q registered", name)
	return c, nil
}

// Lookup resolves a top-level component; the empty name is the root.
func (r *Registry) Lookup(name string) (*Component, bool) {
	if name == "" {
		return r.root, true
	}

	r.RLock()
	defer r.RUnlock()
	c, ok := r.root.children[name]
	return c, ok
}

// Components returns the top-level named components.
func (r *Registry) Components() []*Component {
	r.RLock()
	defer r.RUnlock()
	list := make([]*Component, 0, len(r.root.children))
	for _, c := range r.root.children {
		list = append(list, c)
	}
	return list
}

func (r *Registry) resolve(component string) (*Component, error) {
	if component == "" {
		return r.root, nil
	}
	c, ok := r.root.children[component]
	if !ok {
		return nil, types.InvalidArgument("component %q is not registered", component)
	}
	return c, nil
}

// AddProperty declares a read-only property on component ("" for the root).
func (r *Registry) AddProperty(component, name string, initial types.Value) error {
	return r.addProperty(component, name, initial, nil)
}

// AddWritableProperty declares a writable property and its update handler.
func (r *Registry) AddWritableProperty(component, name string, initial types.Value, handler WritablePropertyHandler) error {
	if handler == nil {
		return types.InvalidArgument("writable property %q needs a handler", name)
	}
	return r.addProperty(component, name, initial, handler)
}

func (r *Registry) addProperty(component, name string, initial types.Value, handler WritablePropertyHandler) error {
	if name == "" {
		return types.InvalidArgument("property name must not be empty")
	}

	r.Lock()
	defer r.Unlock()
	if r.sealed {
		return types.ErrRegistrySealed
	}
	c, err := r.resolve(component)
	if err != nil {
		return err
	}
	if _, exist := c.properties[name]; exist {
		return &types.DuplicateError{Kind: types.KindProperty, Scope: component, Name: name}
	}

	c.propertyNames = append(c.propertyNames, name)
	c.properties[name] = &Property{Name: name, Initial: initial, Writable: handler != nil}
	if handler != nil {
		c.writables[name] = handler
	}
	return nil
}

// WritableHandler returns the update handler of a writable property.
func (r *Registry) WritableHandler(component, name string) (WritablePropertyHandler, *Property, bool) {
	r.RLock()
	defer r.RUnlock()
	c, err := r.resolve(component)
	if err != nil {
		return nil, nil, false
	}
	h, ok := c.writables[name]
	if !ok {
		return nil, nil, false
	}
	return h, c.properties[name], true
}

// RegisterCommandHandler binds handler to (component, command). An empty
// component is the root scope.
func (r *Registry) RegisterCommandHandler(component, command string, handler CommandHandler, userContext interface{}) error {
	if command == "" {
		return types.InvalidArgument("command name must not be empty")
	}
	if handler == nil {
		return types.InvalidArgument("command %q needs a handler", command)
	}
	if _, err := types.BuildCommandName(component, command); err != nil {
		return err
	}

	r.Lock()
	defer r.Unlock()
	if r.sealed {
		return types.ErrRegistrySealed
	}
	c, err := r.resolve(component)
	if err != nil {
		return err
	}
	if _, exist := c.commands[command]; exist {
		return &types.DuplicateError{Kind: types.KindCommand, Scope: component, Name: command}
	}
	c.commands[command] = &commandEntry{handler: handler, userContext: userContext}
	return nil
}

// RegisterDefaultCommandHandler sets the fallback for unmatched commands.
// A later call replaces the earlier handler.
func (r *Registry) RegisterDefaultCommandHandler(handler CommandHandler, userContext interface{}) error {
	if handler == nil {
		return types.InvalidArgument("default command handler must not be nil")
	}

	r.Lock()
	defer r.Unlock()
	if r.sealed {
		return types.ErrRegistrySealed
	}
	r.defaultHandler = &commandEntry{handler: handler, userContext: userContext}
	return nil
}

// CommandHandler resolves the handler for (component, command), falling back
// to the default handler. isDefault tells which one was picked.
func (r *Registry) CommandHandler(component, command string) (handler CommandHandler, userContext interface{}, isDefault bool, err error) {
	r.RLock()
	defer r.RUnlock()

	if c, rerr := r.resolve(component); rerr == nil {
		if entry, ok := c.commands[command]; ok {
			return entry.handler, entry.userContext, false, nil
		}
	}
	if r.defaultHandler != nil {
		return r.defaultHandler.handler, r.defaultHandler.userContext, true, nil
	}
	return nil, nil, false, types.ErrCommandNotFound
}

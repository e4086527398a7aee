package dtmodule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/metrics"
	"github.com/jwzl/edgepnp/pnp/types"
)

// PatchOutcome records what happened to one desired property.
type PatchOutcome struct {
	Component string
	Property  string
	Version   int64
	// Resolved is false when no writable handler matched; nothing was written.
	Resolved bool
	// Code is the last ack code written, or 404 when unresolved.
	Code        int
	Value       types.Value
	Description string
	// Acks counts the reported writes that reached the transport.
	Acks int
	Err  error
}

// PropertyModule runs the writable-property protocol.
type PropertyModule struct {
	name    string
	context *dtcontext.DTContext
}

func NewPropertyModule() *PropertyModule {
	return &PropertyModule{name: PropertyModuleName}
}

func (pm *PropertyModule) Name() string {
	return pm.name
}

func (pm *PropertyModule) InitModule(dtc *dtcontext.DTContext) {
	pm.context = dtc
}

// ProcessDesiredPatch walks patch in arrival order and runs the protocol for
// each entry. Top-level keys naming a registered component are read as that
// component's properties; every other key is a root property.
func (pm *PropertyModule) ProcessDesiredPatch(ctx context.Context, patch *types.PropertyCollection) []*PatchOutcome {
	var outcomes []*PatchOutcome
	if patch == nil {
		return outcomes
	}
	pm.context.Registry.Seal()

	patch.Range(func(key string, value types.Value) bool {
		if ctx.Err() != nil {
			return false
		}

		if c, ok := pm.lookupComponent(key); ok {
			if nested, isCollection := value.Collection(); isCollection {
				version := patch.Version()
				if !patch.HasVersion() {
					version = nested.Version()
				}
				nested.Range(func(name string, v types.Value) bool {
					if ctx.Err() != nil {
						return false
					}
					outcomes = append(outcomes, pm.handleProperty(ctx, c.Name(), name, v, version))
					return true
				})
				return true
			}
		}

		outcomes = append(outcomes, pm.handleProperty(ctx, "", key, value, patch.Version()))
		return true
	})

	return outcomes
}

// ApplyDesiredProperty runs the protocol for one explicitly addressed property.
func (pm *PropertyModule) ApplyDesiredProperty(ctx context.Context, componentName, name string, value types.Value, version int64) *PatchOutcome {
	pm.context.Registry.Seal()

	if componentName != "" {
		if _, ok := pm.lookupComponent(componentName); !ok {
			outcome := &PatchOutcome{Component: componentName, Property: name, Version: version, Code: types.StatusNotFound}
			pm.context.Diagnose(&dtcontext.DiagnosticEvent{
				Kind:      dtcontext.DiagPatchResolutionMiss,
				Component: componentName,
				Name:      name,
				Version:   version,
			})
			return outcome
		}
	}
	return pm.handleProperty(ctx, componentName, name, value, version)
}

// Reconcile replays desired properties whose reported ack does not carry the
// desired version.
func (pm *PropertyModule) Reconcile(ctx context.Context, snapshot *types.Properties) []*PatchOutcome {
	var outcomes []*PatchOutcome
	if snapshot == nil {
		return outcomes
	}
	pm.context.Registry.Seal()

	desired := snapshot.Writable()
	version := desired.Version()

	desired.Range(func(key string, value types.Value) bool {
		if c, ok := pm.lookupComponent(key); ok {
			if nested, isCollection := value.Collection(); isCollection {
				nested.Range(func(name string, v types.Value) bool {
					reported, _ := snapshot.GetComponent(c.Name(), name)
					if pm.needsSync(c.Name(), name, reported, version) {
						outcomes = append(outcomes, pm.handleProperty(ctx, c.Name(), name, v, version))
					}
					return ctx.Err() == nil
				})
				return ctx.Err() == nil
			}
		}

		reported, _ := snapshot.Get(key)
		if pm.needsSync("", key, reported, version) {
			outcomes = append(outcomes, pm.handleProperty(ctx, "", key, value, version))
		}
		return ctx.Err() == nil
	})

	return outcomes
}

func (pm *PropertyModule) needsSync(componentName, name string, reported types.Value, version int64) bool {
	if _, _, ok := pm.context.Registry.WritableHandler(componentName, name); !ok {
		return false
	}
	ack, ok := types.AckFromValue(reported)
	return !ok || ack.AckVersion != version
}

func (pm *PropertyModule) lookupComponent(name string) (*component.Component, bool) {
	if name == "" {
		return nil, false
	}
	return pm.context.Registry.Lookup(name)
}

func (pm *PropertyModule) handleProperty(ctx context.Context, componentName, name string, value types.Value, version int64) *PatchOutcome {
	outcome := &PatchOutcome{
		Component: componentName,
		Property:  name,
		Version:   version,
		Value:     value,
	}

	handler, prop, ok := pm.context.Registry.WritableHandler(componentName, name)
	if !ok {
		outcome.Code = types.StatusNotFound
		pm.context.Diagnose(&dtcontext.DiagnosticEvent{
			Kind:      dtcontext.DiagPatchResolutionMiss,
			Component: componentName,
			Name:      name,
			Version:   version,
		})
		return outcome
	}
	outcome.Resolved = true

	if !prop.Initial.SameShape(value) {
		desc := fmt.Sprintf("expected a %s value", prop.Initial.Kind())
		pm.ack(ctx, outcome, value, types.StatusBadRequest, desc)
		return outcome
	}

	// A lost in-progress ack fails only that ack; the update is still applied.
	pm.ack(ctx, outcome, value, types.StatusInProgress, "")

	update := &types.WritablePropertyUpdate{
		ComponentName: componentName,
		PropertyName:  name,
		Value:         value,
		Version:       version,
	}
	result, err := invokeWritable(ctx, handler, update)

	if ctx.Err() != nil {
		klog.Warningf("update of %q/%q (version %d) cancelled, no completion ack", componentName, name, version)
		outcome.Err = ctx.Err()
		return outcome
	}

	settled := value
	if result != nil && !result.Value.IsEmpty() {
		settled = result.Value
	}
	if err != nil {
		code, desc := types.StatusBadRequest, err.Error()
		var ackErr *types.AckError
		if errors.As(err, &ackErr) {
			code, desc = ackErr.Code, ackErr.Description
		}
		pm.ack(ctx, outcome, settled, code, desc)
		outcome.Err = err
		return outcome
	}

	desc := "Successfully updated " + name
	if result != nil && result.Description != "" {
		desc = result.Description
	}
	pm.ack(ctx, outcome, settled, types.StatusCompleted, desc)
	return outcome
}

// ack writes one acknowledgment and records it on outcome. It returns false
// when the write failed.
func (pm *PropertyModule) ack(ctx context.Context, outcome *PatchOutcome, value types.Value, code int, desc string) bool {
	resp := types.NewWritablePropertyResponse(value, code, outcome.Version, desc)
	patch, err := BuildAckPatch(outcome.Component, outcome.Property, resp)
	if err == nil {
		err = pm.context.SendReportedPatch(ctx, nil, patch)
	}
	if err != nil {
		outcome.Err = err
		pm.context.Diagnose(&dtcontext.DiagnosticEvent{
			Kind:      dtcontext.DiagAckFailed,
			Component: outcome.Component,
			Name:      outcome.Property,
			Version:   outcome.Version,
			Err:       err,
		})
		return false
	}

	metrics.AcksSent.WithLabelValues(metrics.Code(code)).Inc()
	outcome.Code = code
	outcome.Value = value
	outcome.Description = desc
	outcome.Acks++
	klog.V(2).Infof("ack %d for %q/%q version %d", code, outcome.Component, outcome.Property, outcome.Version)
	return true
}

// BuildAckPatch wraps resp into a reported patch, nested under the component
// with its marker when componentName is set.
func BuildAckPatch(componentName, name string, resp *types.WritablePropertyResponse) (*types.PropertyCollection, error) {
	return BuildReportedPatch(componentName, name, types.FromSerializable(resp))
}

// BuildReportedPatch builds {name: value} or {component: {"__t":"c", name: value}}.
func BuildReportedPatch(componentName, name string, value types.Value) (*types.PropertyCollection, error) {
	props := types.NewPropertyCollection()
	if err := props.Set(name, value); err != nil {
		return nil, err
	}
	return WrapComponent(componentName, props)
}

// WrapComponent nests props under componentName with the component marker.
// An empty componentName returns props unchanged.
func WrapComponent(componentName string, props *types.PropertyCollection) (*types.PropertyCollection, error) {
	if componentName == "" {
		return props, nil
	}

	nested := types.NewComponentCollection()
	props.Range(func(key string, v types.Value) bool {
		nested.Set(key, v)
		return true
	})

	patch := types.NewPropertyCollection()
	if err := patch.Set(componentName, types.FromCollection(nested)); err != nil {
		return nil, err
	}
	return patch, nil
}

func invokeWritable(ctx context.Context, handler component.WritablePropertyHandler, update *types.WritablePropertyUpdate) (result *types.WritablePropertyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("writable property handler for %q panicked: %v", update.PropertyName, r)
			err = types.Reject(types.StatusInternal, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler(ctx, update)
}

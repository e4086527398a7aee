// Package pnp is the device-side entry point of the twin protocol: the
// registration surface used by the application, the inbound entry points
// used by a transport, and the outbound property and telemetry operations.
package pnp

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/convention"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/dtmodule"
	"github.com/jwzl/edgepnp/pnp/types"
)

// Config wires a DeviceClient. Nil conventions select the defaults.
type Config struct {
	Transport           dtcontext.Transport
	PropertyConvention  convention.Convention
	TelemetryConvention convention.Convention
	Diagnostics         dtcontext.Diagnostics
}

// ConnectionStatusHandler is told about connection state changes.
type ConnectionStatusHandler func(status, reason string)

// DeviceClient binds a component registry to a transport.
type DeviceClient struct {
	context   *dtcontext.DTContext
	property  *dtmodule.PropertyModule
	command   *dtmodule.CommandModule
	telemetry *dtmodule.TelemetryModule

	mutex         sync.RWMutex
	statusHandler ConnectionStatusHandler
}

// NewDeviceClient creates a client with an empty registry.
func NewDeviceClient(conf *Config) (*DeviceClient, error) {
	if conf == nil || conf.Transport == nil {
		return nil, types.InvalidArgument("a transport is required")
	}

	dtc := dtcontext.NewDTContext(component.NewRegistry(), conf.Transport, conf.PropertyConvention, conf.TelemetryConvention)
	dtmodule.RegisterAll(dtc)
	if conf.Diagnostics != nil {
		dtc.SetDiagnostics(conf.Diagnostics)
	}

	dc := &DeviceClient{context: dtc}
	if m, ok := dtc.GetModule(dtmodule.PropertyModuleName); ok {
		dc.property = m.(*dtmodule.PropertyModule)
	}
	if m, ok := dtc.GetModule(dtmodule.CommandModuleName); ok {
		dc.command = m.(*dtmodule.CommandModule)
	}
	if m, ok := dtc.GetModule(dtmodule.TelemetryModuleName); ok {
		dc.telemetry = m.(*dtmodule.TelemetryModule)
	}
	return dc, nil
}

// Registry exposes the component registry.
func (dc *DeviceClient) Registry() *component.Registry {
	return dc.context.Registry
}

func (dc *DeviceClient) RegisterComponent(name string) (*component.Component, error) {
	return dc.context.Registry.RegisterComponent(name)
}

func (dc *DeviceClient) AddProperty(componentName, name string, initial types.Value) error {
	return dc.context.Registry.AddProperty(componentName, name, initial)
}

func (dc *DeviceClient) AddWritableProperty(componentName, name string, initial types.Value, handler component.WritablePropertyHandler) error {
	return dc.context.Registry.AddWritableProperty(componentName, name, initial, handler)
}

func (dc *DeviceClient) RegisterCommandHandler(componentName, command string, handler component.CommandHandler, userContext interface{}) error {
	return dc.context.Registry.RegisterCommandHandler(componentName, command, handler, userContext)
}

func (dc *DeviceClient) RegisterDefaultCommandHandler(handler component.CommandHandler, userContext interface{}) error {
	return dc.context.Registry.RegisterDefaultCommandHandler(handler, userContext)
}

// SetConnectionStatusHandler installs the connection status handler.
func (dc *DeviceClient) SetConnectionStatusHandler(h ConnectionStatusHandler) {
	dc.mutex.Lock()
	dc.statusHandler = h
	dc.mutex.Unlock()
}

// OnDesiredPropertyPatch runs the writable-property protocol over patch.
func (dc *DeviceClient) OnDesiredPropertyPatch(ctx context.Context, patch *types.PropertyCollection) []*dtmodule.PatchOutcome {
	klog.V(2).Infof("desired patch version %d with %d entries", patch.Version(), patch.Len())
	return dc.property.ProcessDesiredPatch(ctx, patch)
}

// OnDesiredPropertyPatchBytes parses an encoded patch, merges it into the
// cached snapshot and processes it.
func (dc *DeviceClient) OnDesiredPropertyPatchBytes(ctx context.Context, data []byte) ([]*dtmodule.PatchOutcome, error) {
	patch, err := types.ParsePropertyCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "desired patch")
	}

	if merged, err := dc.context.Snapshot().MergeDesired(data); err != nil {
		klog.Warningf("desired patch not merged into the snapshot: %v", err)
	} else {
		dc.context.StoreSnapshot(merged)
	}
	return dc.OnDesiredPropertyPatch(ctx, patch), nil
}

// OnCommandInvocation dispatches a command. It always returns a response.
func (dc *DeviceClient) OnCommandInvocation(ctx context.Context, id string, payload []byte) *types.CommandResponse {
	return dc.command.Invoke(ctx, id, payload)
}

// OnConnectionStatusChanged records the new state and tells the application.
func (dc *DeviceClient) OnConnectionStatusChanged(status, reason string) {
	dc.context.SetConnectionStatus(status, reason)

	dc.mutex.RLock()
	h := dc.statusHandler
	dc.mutex.RUnlock()
	if h != nil {
		h(status, reason)
	}
}

// ConnectionStatus returns the last recorded connection state.
func (dc *DeviceClient) ConnectionStatus() (string, string) {
	return dc.context.ConnectionStatus()
}

// UpdateProperty reports one property, nested under componentName when set.
func (dc *DeviceClient) UpdateProperty(ctx context.Context, componentName, name string, value types.Value) error {
	patch, err := dtmodule.BuildReportedPatch(componentName, name, value)
	if err != nil {
		return err
	}
	return dc.context.SendReportedPatch(ctx, nil, patch)
}

// UpdateProperties reports a set of properties in one patch. conv overrides
// the property convention when not nil.
func (dc *DeviceClient) UpdateProperties(ctx context.Context, componentName string, props *types.PropertyCollection, conv convention.Convention) error {
	if props == nil {
		return types.InvalidArgument("properties must not be nil")
	}
	patch, err := dtmodule.WrapComponent(componentName, props)
	if err != nil {
		return err
	}
	return dc.context.SendReportedPatch(ctx, conv, patch)
}

// RespondToWritableProperty reports an application-built acknowledgment.
func (dc *DeviceClient) RespondToWritableProperty(ctx context.Context, componentName, name string, resp *types.WritablePropertyResponse) error {
	if resp == nil {
		return types.InvalidArgument("response must not be nil")
	}
	patch, err := dtmodule.BuildAckPatch(componentName, name, resp)
	if err != nil {
		return err
	}
	return dc.context.SendReportedPatch(ctx, nil, patch)
}

// ApplyDesiredProperty runs the writable-property protocol for one property.
func (dc *DeviceClient) ApplyDesiredProperty(ctx context.Context, componentName, name string, value types.Value, version int64) *dtmodule.PatchOutcome {
	return dc.property.ApplyDesiredProperty(ctx, componentName, name, value, version)
}

// SendTelemetry sends one envelope built from points. componentName travels
// out of band; properties are added as message properties.
func (dc *DeviceClient) SendTelemetry(ctx context.Context, componentName string, properties map[string]string, conv convention.Convention, points ...dtmodule.TelemetryPoint) error {
	payload, err := dc.telemetry.BuildTelemetryBatch(points...)
	if err != nil {
		return err
	}
	msg, err := dc.telemetry.NewEnvelope(componentName, payload, conv)
	if err != nil {
		return err
	}
	for k, v := range properties {
		msg.SetProperty(k, v)
	}
	return dc.telemetry.Send(ctx, msg)
}

// GetProperties fetches the twin document, replaces the cached snapshot and
// returns it. Without a TwinReader transport the cached snapshot is returned.
func (dc *DeviceClient) GetProperties(ctx context.Context) (*types.Properties, error) {
	reader, ok := dc.context.Transport().(dtcontext.TwinReader)
	if !ok {
		return dc.context.Snapshot(), nil
	}
	if !dc.context.IsConnected() {
		return nil, types.ErrNotConnected
	}

	data, err := reader.GetTwin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get twin")
	}
	props, err := types.ParseTwin(data)
	if err != nil {
		return nil, err
	}
	dc.context.StoreSnapshot(props)
	return props, nil
}

// SyncWritableProperties fetches the twin and replays every desired property
// whose reported acknowledgment lags the desired version.
func (dc *DeviceClient) SyncWritableProperties(ctx context.Context) ([]*dtmodule.PatchOutcome, error) {
	props, err := dc.GetProperties(ctx)
	if err != nil {
		return nil, err
	}
	return dc.property.Reconcile(ctx, props), nil
}

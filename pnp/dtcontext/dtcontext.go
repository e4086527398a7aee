package dtcontext

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/convention"
	"github.com/jwzl/edgepnp/pnp/metrics"
	"github.com/jwzl/edgepnp/pnp/types"
)

// DTContext is the state shared by the protocol modules of one device.
type DTContext struct {
	Registry *component.Registry
	Modules  map[string]DTModule

	transport           Transport
	propertyConvention  convention.Convention
	telemetryConvention convention.Convention

	// writeMutex keeps one outbound write in flight at a time.
	writeMutex sync.Mutex

	stateMutex  sync.RWMutex
	snapshot    *types.Properties
	status      string
	reason      string
	diagnostics Diagnostics
}

// NewDTContext builds a context. Nil conventions fall back to the defaults.
func NewDTContext(registry *component.Registry, transport Transport, property, telemetry convention.Convention) *DTContext {
	if registry == nil || transport == nil {
		return nil
	}
	if property == nil {
		property = convention.DefaultProperty()
	}
	if telemetry == nil {
		telemetry = convention.DefaultTelemetry()
	}

	return &DTContext{
		Registry:            registry,
		Modules:             make(map[string]DTModule),
		transport:           transport,
		propertyConvention:  property,
		telemetryConvention: telemetry,
		snapshot:            types.NewProperties(nil, nil),
		status:              ConnectionConnected,
	}
}

func (dtc *DTContext) RegisterDTModule(dtm DTModule) {
	dtm.InitModule(dtc)
	dtc.Modules[dtm.Name()] = dtm
}

// GetModule returns the module registered under name.
func (dtc *DTContext) GetModule(name string) (DTModule, bool) {
	m, ok := dtc.Modules[name]
	return m, ok
}

func (dtc *DTContext) Transport() Transport { return dtc.transport }

func (dtc *DTContext) PropertyConvention() convention.Convention { return dtc.propertyConvention }

func (dtc *DTContext) TelemetryConvention() convention.Convention { return dtc.telemetryConvention }

// SetDiagnostics installs the diagnostics hook.
func (dtc *DTContext) SetDiagnostics(d Diagnostics) {
	dtc.stateMutex.Lock()
	dtc.diagnostics = d
	dtc.stateMutex.Unlock()
}

// Diagnose logs ev and hands it to the hook.
func (dtc *DTContext) Diagnose(ev *DiagnosticEvent) {
	metrics.Diagnostics.WithLabelValues(ev.Kind).Inc()
	if ev.Err != nil {
		klog.Warningf("%s: component %q name %q version %d: %v", ev.Kind, ev.Component, ev.Name, ev.Version, ev.Err)
	} else {
		klog.V(2).Infof("%s: component %q name %q version %d", ev.Kind, ev.Component, ev.Name, ev.Version)
	}

	dtc.stateMutex.RLock()
	d := dtc.diagnostics
	dtc.stateMutex.RUnlock()
	if d != nil {
		d(ev)
	}
}

// SetConnectionStatus records the connection state.
func (dtc *DTContext) SetConnectionStatus(status, reason string) {
	dtc.stateMutex.Lock()
	dtc.status = status
	dtc.reason = reason
	dtc.stateMutex.Unlock()
	klog.Infof("connection status %s (%s)", status, reason)
}

// ConnectionStatus returns the last recorded state and reason.
func (dtc *DTContext) ConnectionStatus() (string, string) {
	dtc.stateMutex.RLock()
	defer dtc.stateMutex.RUnlock()
	return dtc.status, dtc.reason
}

// IsConnected reports whether outbound sends are allowed.
func (dtc *DTContext) IsConnected() bool {
	status, _ := dtc.ConnectionStatus()
	return status == ConnectionConnected
}

// Snapshot returns the cached twin snapshot.
func (dtc *DTContext) Snapshot() *types.Properties {
	dtc.stateMutex.RLock()
	defer dtc.stateMutex.RUnlock()
	return dtc.snapshot
}

// StoreSnapshot replaces the cached snapshot wholesale.
func (dtc *DTContext) StoreSnapshot(p *types.Properties) {
	if p == nil {
		return
	}
	dtc.stateMutex.Lock()
	dtc.snapshot = p
	dtc.stateMutex.Unlock()
}

// SendReportedPatch serializes patch with conv, the property convention when
// nil, and hands it to the transport.
func (dtc *DTContext) SendReportedPatch(ctx context.Context, conv convention.Convention, patch *types.PropertyCollection) error {
	if conv == nil {
		conv = dtc.propertyConvention
	}
	data, err := conv.GetPayloadBytes(patch)
	if err != nil {
		return err
	}
	return dtc.SendReportedBytes(ctx, data)
}

// SendReportedBytes hands an encoded reported patch to the transport.
func (dtc *DTContext) SendReportedBytes(ctx context.Context, data []byte) error {
	dtc.writeMutex.Lock()
	defer dtc.writeMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !dtc.IsConnected() {
		return types.ErrNotConnected
	}
	klog.V(4).Infof("send reported patch %s", data)
	err := dtc.transport.SendReportedPropertyPatch(ctx, data)
	metrics.ReportedPatches.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return errors.Wrap(err, "send reported patch")
	}
	return nil
}

// SendTelemetry hands a telemetry envelope to the transport.
func (dtc *DTContext) SendTelemetry(ctx context.Context, msg *types.TelemetryMessage) error {
	dtc.writeMutex.Lock()
	defer dtc.writeMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !dtc.IsConnected() {
		return types.ErrNotConnected
	}
	klog.V(4).Infof("send telemetry (component %q) %s", msg.ComponentName, msg.Payload)
	err := dtc.transport.SendTelemetry(ctx, msg)
	metrics.TelemetrySent.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return errors.Wrap(err, "send telemetry")
	}
	return nil
}

package dtmodule

import (
	"context"

	"github.com/jwzl/edgepnp/pnp/convention"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/types"
)

// TelemetryPoint is one name/value pair of a telemetry payload.
type TelemetryPoint struct {
	Name  string
	Value types.Value
}

// TelemetryModule builds and sends telemetry envelopes.
type TelemetryModule struct {
	name    string
	context *dtcontext.DTContext
}

func NewTelemetryModule() *TelemetryModule {
	return &TelemetryModule{name: TelemetryModuleName}
}

func (tm *TelemetryModule) Name() string {
	return tm.name
}

func (tm *TelemetryModule) InitModule(dtc *dtcontext.DTContext) {
	tm.context = dtc
}

// BuildTelemetry returns the payload map {name: value}.
func (tm *TelemetryModule) BuildTelemetry(name string, value types.Value) (*types.PropertyCollection, error) {
	return tm.BuildTelemetryBatch(TelemetryPoint{Name: name, Value: value})
}

// BuildTelemetryBatch returns one flat payload map holding every point in order.
func (tm *TelemetryModule) BuildTelemetryBatch(points ...TelemetryPoint) (*types.PropertyCollection, error) {
	payload := types.NewPropertyCollection()
	for _, p := range points {
		if err := payload.Set(p.Name, p.Value); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// NewEnvelope encodes payload with conv, the telemetry convention when nil,
// and tags the envelope with componentName out of band.
func (tm *TelemetryModule) NewEnvelope(componentName string, payload *types.PropertyCollection, conv convention.Convention) (*types.TelemetryMessage, error) {
	if conv == nil {
		conv = tm.context.TelemetryConvention()
	}
	data, err := conv.GetPayloadBytes(payload)
	if err != nil {
		return nil, err
	}

	msg := types.NewTelemetryMessage(data)
	msg.ComponentName = componentName
	msg.ContentType = conv.ContentType()
	msg.ContentEncoding = conv.ContentEncoding()
	return msg, nil
}

// Send hands an envelope to the transport.
func (tm *TelemetryModule) Send(ctx context.Context, msg *types.TelemetryMessage) error {
	if msg == nil {
		return types.InvalidArgument("telemetry message must not be nil")
	}
	return tm.context.SendTelemetry(ctx, msg)
}

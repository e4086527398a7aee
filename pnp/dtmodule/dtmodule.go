package dtmodule

import (
	"github.com/jwzl/edgepnp/pnp/dtcontext"
)

const (
	PropertyModuleName  = "property"
	CommandModuleName   = "command"
	TelemetryModuleName = "telemetry"
)

// NewDTModule creates the module registered under name, nil when unknown.
func NewDTModule(name string) dtcontext.DTModule {
	switch name {
	case PropertyModuleName:
		return NewPropertyModule()
	case CommandModuleName:
		return NewCommandModule()
	case TelemetryModuleName:
		return NewTelemetryModule()
	}
	return nil
}

// RegisterAll creates every protocol module and binds it to dtc.
func RegisterAll(dtc *dtcontext.DTContext) {
	for _, name := range []string{PropertyModuleName, CommandModuleName, TelemetryModuleName} {
		dtc.RegisterDTModule(NewDTModule(name))
	}
}

package dtcontext

import (
	"context"

	"github.com/jwzl/edgepnp/pnp/types"
)

// Transport is the outbound side of the connection to the twin service.
type Transport interface {
	// SendReportedPropertyPatch publishes one reported-property patch.
	SendReportedPropertyPatch(ctx context.Context, patch []byte) error
	// SendTelemetry publishes one telemetry envelope.
	SendTelemetry(ctx context.Context, msg *types.TelemetryMessage) error
}

// TwinReader is implemented by transports able to fetch the full twin document.
type TwinReader interface {
	GetTwin(ctx context.Context) ([]byte, error)
}

// Connection states reported by the transport.
const (
	ConnectionConnected            = "Connected"
	ConnectionDisconnected         = "Disconnected"
	ConnectionDisconnectedRetrying = "DisconnectedRetrying"
	ConnectionDisabled             = "Disabled"
)

// Diagnostic kinds.
const (
	DiagPatchResolutionMiss = "PatchResolutionMiss"
	DiagAckFailed           = "AckFailed"
	DiagCommandFailed       = "CommandFailed"
	DiagCommandNotFound     = "CommandNotFound"
)

// DiagnosticEvent describes something the protocol handled without failing
// the caller.
type DiagnosticEvent struct {
	Kind      string
	Component string
	Name      string
	Version   int64
	Err       error
}

// Diagnostics receives diagnostic events. It must not block.
type Diagnostics func(ev *DiagnosticEvent)

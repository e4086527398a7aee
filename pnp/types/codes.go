package types

const (
	// StatusCompleted acknowledges a settled update or a successful command.
	StatusCompleted = 200
	// StatusInProgress acknowledges an accepted update that is still being applied.
	StatusInProgress = 202
	// StatusBadRequest marks a malformed value or payload.
	StatusBadRequest = 400
	// StatusNotFound marks an unresolved property, component or command.
	StatusNotFound = 404
	// StatusInternal marks a handler fault.
	StatusInternal = 500
)

// TelemetryMessage is an outbound telemetry envelope. The component tag and
// properties travel beside the payload, never inside it.
type TelemetryMessage struct {
	Payload         []byte
	ComponentName   string
	ContentType     string
	ContentEncoding string
	Properties      map[string]string
}

// NewTelemetryMessage builds an envelope around payload.
func NewTelemetryMessage(payload []byte) *TelemetryMessage {
	return &TelemetryMessage{
		Payload:    payload,
		Properties: make(map[string]string),
	}
}

// SetProperty adds an application property.
func (m *TelemetryMessage) SetProperty(key, value string) *TelemetryMessage {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
	return m
}

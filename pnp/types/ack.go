package types

// WritablePropertyResponse is the reported entry acknowledging a desired update.
type WritablePropertyResponse struct {
	Value          Value  `json:"value"`
	AckCode        int    `json:"ac"`
	AckVersion     int64  `json:"av"`
	AckDescription string `json:"ad,omitempty"`
}

// NewWritablePropertyResponse builds an ack for version.
func NewWritablePropertyResponse(value Value, code int, version int64, description string) *WritablePropertyResponse {
	return &WritablePropertyResponse{
		Value:          value,
		AckCode:        code,
		AckVersion:     version,
		AckDescription: description,
	}
}

// Serialize renders the ack in its wire form.
func (r *WritablePropertyResponse) Serialize() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", NewSerializationError("marshal ack", err)
	}
	return string(data), nil
}

// AckFromValue reads an ack back from a reported value. ok is false when the
// value does not carry "ac" and "av".
func AckFromValue(v Value) (*WritablePropertyResponse, bool) {
	c, isCollection := v.Collection()
	if !isCollection {
		return nil, false
	}
	code, hasCode := c.Get("ac")
	version, hasVersion := c.Get("av")
	if !hasCode || !hasVersion {
		return nil, false
	}

	ack := &WritablePropertyResponse{}
	ac, ok := code.Int64()
	if !ok {
		return nil, false
	}
	av, ok := version.Int64()
	if !ok {
		return nil, false
	}
	ack.AckCode = int(ac)
	ack.AckVersion = av
	ack.Value, _ = c.Get("value")
	if desc, ok := c.Get("ad"); ok {
		ack.AckDescription, _ = desc.Str()
	}
	return ack, true
}

// WritablePropertyUpdate is what a writable-property handler receives.
type WritablePropertyUpdate struct {
	// ComponentName is empty for root-level properties.
	ComponentName string
	PropertyName  string
	Value         Value
	Version       int64
}

// WritablePropertyResult is the settled outcome a handler reports.
// An empty Value means the requested value was applied unchanged.
type WritablePropertyResult struct {
	Value       Value
	Description string
}

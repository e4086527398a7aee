package types

import (
	"strings"
)

// CommandDelimiter separates component and command in an invocation identifier.
const CommandDelimiter = "*"

// ParseCommandName splits id into component and command. component is empty
// when id carries no delimiter.
func ParseCommandName(id string) (component, command string, err error) {
	if id == "" {
		return "", "", InvalidArgument("command identifier must not be empty")
	}

	idx := strings.Index(id, CommandDelimiter)
	if idx < 0 {
		return "", id, nil
	}

	component = id[:idx]
	command = id[idx+len(CommandDelimiter):]
	if component == "" || command == "" {
		return "", "", InvalidArgument("malformed command identifier %q", id)
	}
	return component, command, nil
}

// BuildCommandName is the inverse of ParseCommandName.
func BuildCommandName(component, command string) (string, error) {
	if command == "" {
		return "", InvalidArgument("command name must not be empty")
	}
	if strings.Contains(component, CommandDelimiter) {
		return "", InvalidArgument("component %q contains %q", component, CommandDelimiter)
	}
	if component == "" {
		return command, nil
	}
	return component + CommandDelimiter + command, nil
}

// CommandRequest is a parsed command invocation.
type CommandRequest struct {
	// ComponentName is empty for root-scoped commands.
	ComponentName string
	CommandName   string
	Payload       Value
	raw           []byte
}

// NewCommandRequest parses id and keeps payload verbatim. An empty payload
// gives an empty Value.
func NewCommandRequest(id string, payload []byte) (*CommandRequest, error) {
	component, command, err := ParseCommandName(id)
	if err != nil {
		return nil, err
	}

	req := &CommandRequest{
		ComponentName: component,
		CommandName:   command,
		raw:           payload,
	}
	if len(payload) > 0 {
		req.Payload, err = ParseValue(payload)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// DataAsJSON returns the payload bytes as received.
func (r *CommandRequest) DataAsJSON() []byte {
	return r.raw
}

// Decode unmarshals the payload into out.
func (r *CommandRequest) Decode(out interface{}) error {
	if len(r.raw) == 0 {
		return NewSerializationError("decode command payload", InvalidArgument("empty payload"))
	}
	if err := json.Unmarshal(r.raw, out); err != nil {
		return NewSerializationError("decode command payload", err)
	}
	return nil
}

// CommandResponse carries the status and optional result of a command.
type CommandResponse struct {
	Status int
	Result Value
}

// NewCommandResponse builds a response.
func NewCommandResponse(status int, result Value) *CommandResponse {
	return &CommandResponse{Status: status, Result: result}
}

// ResultAsJSON renders the result, "null" when it is empty.
func (r *CommandResponse) ResultAsJSON() ([]byte, error) {
	return r.Result.MarshalJSON()
}

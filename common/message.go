package common

import (
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/jwzl/wssocket/model"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuildModelMessage builds a routed message. []byte content is kept as is,
// anything else is marshalled to JSON.
func BuildModelMessage(source string, target string, operation string, resource string, content interface{}) *model.Message {
	now := time.Now().UnixNano() / 1e6

	//Header
	msg := model.NewMessage("")
	msg.BuildHeader("", now)

	//Router
	msg.BuildRouter(source, "", target, resource, operation)

	//content
	switch t := content.(type) {
	case nil:
	case []byte:
		msg.Content = t
	case string:
		msg.Content = []byte(t)
	default:
		bytes, err := json.Marshal(content)
		if err == nil {
			msg.Content = bytes
		}
	}

	return msg
}

// GetContent returns the message content as bytes.
func GetContent(msg *model.Message) ([]byte, error) {
	switch t := msg.Content.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return nil, errors.New("invalid message content")
}

// MethodResource returns the resource of an invocation of command id.
func MethodResource(id string) string {
	return PNP_RESOURCE_METHODS + "/" + id
}

// ParseMethodResource extracts the command identifier from a methods resource.
func ParseMethodResource(resource string) (string, bool) {
	prefix := PNP_RESOURCE_METHODS + "/"
	if !strings.HasPrefix(resource, prefix) {
		return "", false
	}
	return resource[len(prefix):], true
}

// MethodResponseResource returns the resource carrying a command status.
func MethodResponseResource(status int) string {
	return PNP_RESOURCE_METHODS + "/res/" + strconv.Itoa(status)
}

// ParseMethodResponseResource extracts the status from a command response resource.
func ParseMethodResponseResource(resource string) (int, error) {
	prefix := PNP_RESOURCE_METHODS + "/res/"
	if !strings.HasPrefix(resource, prefix) {
		return 0, errors.Errorf("%q is not a method response", resource)
	}
	return strconv.Atoi(resource[len(prefix):])
}

// BuildDesiredMessage wraps a desired-property patch.
func BuildDesiredMessage(patch []byte) *model.Message {
	return BuildModelMessage(CloudName, DeviceModuleName, PNP_OPS_PATCH, PNP_RESOURCE_DESIRED, patch)
}

// BuildMethodMessage wraps a command invocation. requestID is carried as the tag.
func BuildMethodMessage(requestID, id string, payload []byte) *model.Message {
	msg := BuildModelMessage(CloudName, DeviceModuleName, PNP_OPS_INVOKE, MethodResource(id), payload)
	msg.SetTag(requestID)
	return msg
}

// BuildMethodResponseMessage answers request with status and result.
func BuildMethodResponseMessage(request *model.Message, status int, result []byte) *model.Message {
	msg := BuildModelMessage(DeviceModuleName, request.GetSource(), PNP_OPS_RESPONSE, MethodResponseResource(status), result)
	msg.SetTag(request.GetTag())
	return msg
}

// BuildConnectionMessage reports a connection state change; reason is the content.
func BuildConnectionMessage(status, reason string) *model.Message {
	return BuildModelMessage(TransportModuleName, DeviceModuleName, status, PNP_RESOURCE_CONNECTION, reason)
}

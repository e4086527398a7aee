package mqtt

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jwzl/edgepnp/pnp/types"
)

// Topics follow the IoT hub MQTT scheme:
//
//	$iothub/twin/PATCH/properties/desired/?$version={v}     desired patches
//	$iothub/methods/POST/{name}/?$rid={rid}                 command invocations
//	$iothub/methods/res/{status}/?$rid={rid}                command responses
//	$iothub/twin/GET/?$rid={rid}                            twin requests
//	$iothub/twin/PATCH/properties/reported/?$rid={rid}      reported patches
//	$iothub/twin/res/{status}/?$rid={rid}[&$version={v}]    twin responses
//	devices/{id}/messages/events/{property bag}            telemetry
const (
	TopicDesiredPrefix    = "$iothub/twin/PATCH/properties/desired/"
	TopicMethodPrefix     = "$iothub/methods/POST/"
	TopicTwinResPrefix    = "$iothub/twin/res/"
	TopicDesiredSubscribe = TopicDesiredPrefix + "#"
	TopicMethodSubscribe  = TopicMethodPrefix + "#"
	TopicTwinResSubscribe = TopicTwinResPrefix + "#"
	topicMethodResPrefix  = "$iothub/methods/res/"
	topicTwinGet          = "$iothub/twin/GET/"
	topicReportedPatch    = "$iothub/twin/PATCH/properties/reported/"
	propertyContentType   = "$.ct"
	propertyContentEncode = "$.ce"
	propertyComponentName = "$.sub"
	queryRequestID        = "$rid"
	queryVersion          = "$version"
)

// SubscribeTopics lists the topics a device subscribes to.
func SubscribeTopics() []string {
	return []string{TopicDesiredSubscribe, TopicMethodSubscribe, TopicTwinResSubscribe}
}

// splitQuery separates "path/?query" into path segments and parsed query.
func splitQuery(rest string) (string, url.Values, error) {
	path := rest
	query := ""
	if idx := strings.Index(rest, "?"); idx >= 0 {
		path = rest[:idx]
		query = rest[idx+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, errors.Wrapf(err, "query %q", query)
	}
	return strings.TrimSuffix(path, "/"), values, nil
}

// ParseDesiredTopic returns the version carried by a desired-patch topic.
func ParseDesiredTopic(topic string) (int64, bool) {
	if !strings.HasPrefix(topic, TopicDesiredPrefix) {
		return 0, false
	}
	_, values, err := splitQuery(topic[len(TopicDesiredPrefix):])
	if err != nil {
		return 0, false
	}
	version, err := strconv.ParseInt(values.Get(queryVersion), 10, 64)
	if err != nil {
		return 0, true
	}
	return version, true
}

// ParseMethodTopic returns the command identifier and request id of an invocation.
func ParseMethodTopic(topic string) (name, rid string, err error) {
	if !strings.HasPrefix(topic, TopicMethodPrefix) {
		return "", "", errors.Errorf("%q is not a method topic", topic)
	}
	name, values, err := splitQuery(topic[len(TopicMethodPrefix):])
	if err != nil {
		return "", "", err
	}
	if name == "" {
		return "", "", types.InvalidArgument("method topic %q has no name", topic)
	}
	return name, values.Get(queryRequestID), nil
}

// ParseTwinResponseTopic returns the status, request id and version of a twin response.
func ParseTwinResponseTopic(topic string) (status int, rid string, version int64, err error) {
	if !strings.HasPrefix(topic, TopicTwinResPrefix) {
		return 0, "", 0, errors.Errorf("%q is not a twin response topic", topic)
	}
	path, values, err := splitQuery(topic[len(TopicTwinResPrefix):])
	if err != nil {
		return 0, "", 0, err
	}
	status, err = strconv.Atoi(path)
	if err != nil {
		return 0, "", 0, errors.Wrapf(err, "twin response status %q", path)
	}
	if v := values.Get(queryVersion); v != "" {
		version, _ = strconv.ParseInt(v, 10, 64)
	}
	return status, values.Get(queryRequestID), version, nil
}

func MethodResponseTopic(status int, rid string) string {
	return fmt.Sprintf("%s%d/?%s=%s", topicMethodResPrefix, status, queryRequestID, url.QueryEscape(rid))
}

func TwinGetTopic(rid string) string {
	return fmt.Sprintf("%s?%s=%s", topicTwinGet, queryRequestID, url.QueryEscape(rid))
}

func ReportedPatchTopic(rid string) string {
	return fmt.Sprintf("%s?%s=%s", topicReportedPatch, queryRequestID, url.QueryEscape(rid))
}

// TelemetryTopic builds the telemetry topic of deviceID. Content type,
// content encoding, component and application properties are carried in the
// property bag.
func TelemetryTopic(deviceID string, msg *types.TelemetryMessage) string {
	values := url.Values{}
	if msg.ContentType != "" {
		values.Set(propertyContentType, msg.ContentType)
	}
	if msg.ContentEncoding != "" {
		values.Set(propertyContentEncode, msg.ContentEncoding)
	}
	if msg.ComponentName != "" {
		values.Set(propertyComponentName, msg.ComponentName)
	}
	keys := make([]string, 0, len(msg.Properties))
	for k := range msg.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, msg.Properties[k])
	}

	return fmt.Sprintf("devices/%s/messages/events/%s", deviceID, values.Encode())
}

// ParseTelemetryTopic is the inverse of TelemetryTopic, used by tests and tools.
func ParseTelemetryTopic(topic string) (deviceID string, msg *types.TelemetryMessage, err error) {
	parts := strings.SplitN(topic, "/", 5)
	if len(parts) < 4 || parts[0] != "devices" || parts[2] != "messages" || parts[3] != "events" {
		return "", nil, errors.Errorf("%q is not a telemetry topic", topic)
	}

	msg = types.NewTelemetryMessage(nil)
	if len(parts) == 5 && parts[4] != "" {
		values, err := url.ParseQuery(parts[4])
		if err != nil {
			return "", nil, errors.Wrapf(err, "property bag %q", parts[4])
		}
		for k := range values {
			v := values.Get(k)
			switch k {
			case propertyContentType:
				msg.ContentType = v
			case propertyContentEncode:
				msg.ContentEncoding = v
			case propertyComponentName:
				msg.ComponentName = v
			default:
				msg.SetProperty(k, v)
			}
		}
	}
	return parts[1], msg, nil
}

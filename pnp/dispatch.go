package pnp

import (
	"context"
	"strings"

	"github.com/jwzl/wssocket/model"
	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/common"
)

// MessageFunc handles one inbound delivery and returns the reply, if any.
type MessageFunc func(ctx context.Context, msg *model.Message) (*model.Message, error)

func (dc *DeviceClient) messageTable() map[string]MessageFunc {
	return map[string]MessageFunc{
		common.PNP_RESOURCE_DESIRED:    dc.desiredHandle,
		common.PNP_RESOURCE_METHODS:    dc.methodHandle,
		common.PNP_RESOURCE_CONNECTION: dc.connectionHandle,
	}
}

// HandleMessage routes an inbound delivery by its resource. Command
// invocations produce a response message for the transport to send.
func (dc *DeviceClient) HandleMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}

	resource := msg.GetResource()
	if strings.HasPrefix(resource, common.PNP_RESOURCE_METHODS+"/") {
		resource = common.PNP_RESOURCE_METHODS
	}

	fn, exist := dc.messageTable()[resource]
	if !exist {
		klog.Warningf("no handle for resource %s, ignored", msg.GetResource())
		return nil, errors.Errorf("unknown resource %q", msg.GetResource())
	}
	return fn(ctx, msg)
}

func (dc *DeviceClient) desiredHandle(ctx context.Context, msg *model.Message) (*model.Message, error) {
	content, err := common.GetContent(msg)
	if err != nil {
		return nil, err
	}
	outcomes, err := dc.OnDesiredPropertyPatchBytes(ctx, content)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("desired patch handled, %d properties", len(outcomes))
	return nil, nil
}

func (dc *DeviceClient) methodHandle(ctx context.Context, msg *model.Message) (*model.Message, error) {
	id, ok := common.ParseMethodResource(msg.GetResource())
	if !ok {
		return nil, errors.Errorf("malformed method resource %q", msg.GetResource())
	}
	content, err := common.GetContent(msg)
	if err != nil {
		return nil, err
	}

	resp := dc.OnCommandInvocation(ctx, id, content)
	result, err := resp.ResultAsJSON()
	if err != nil {
		klog.Errorf("command %s result: %v", id, err)
		result = nil
	}
	return common.BuildMethodResponseMessage(msg, resp.Status, result), nil
}

func (dc *DeviceClient) connectionHandle(ctx context.Context, msg *model.Message) (*model.Message, error) {
	reason, _ := common.GetContent(msg)
	dc.OnConnectionStatusChanged(msg.GetOperation(), string(reason))
	return nil, nil
}

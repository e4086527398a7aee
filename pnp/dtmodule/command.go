package dtmodule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/metrics"
	"github.com/jwzl/edgepnp/pnp/types"
)

// CommandModule routes command invocations to registered handlers.
type CommandModule struct {
	name    string
	context *dtcontext.DTContext
}

func NewCommandModule() *CommandModule {
	return &CommandModule{name: CommandModuleName}
}

func (cm *CommandModule) Name() string {
	return cm.name
}

func (cm *CommandModule) InitModule(dtc *dtcontext.DTContext) {
	cm.context = dtc
}

// Dispatch parses id, resolves the handler for (component, command) or the
// default handler, and invokes it. It fails with ErrInvalidArgument for a bad
// identifier and ErrCommandNotFound when nothing matches. Handler failures are
// returned as a response, never as an error.
func (cm *CommandModule) Dispatch(ctx context.Context, id string, payload []byte) (*types.CommandResponse, error) {
	cm.context.Registry.Seal()

	componentName, commandName, err := types.ParseCommandName(id)
	if err != nil {
		return nil, err
	}

	handler, userContext, isDefault, err := cm.context.Registry.CommandHandler(componentName, commandName)
	if err != nil {
		cm.context.Diagnose(&dtcontext.DiagnosticEvent{
			Kind:      dtcontext.DiagCommandNotFound,
			Component: componentName,
			Name:      commandName,
			Err:       err,
		})
		return nil, errors.Wrapf(err, "%q", id)
	}
	if isDefault {
		klog.V(2).Infof("command %q routed to the default handler", id)
	}

	req, err := types.NewCommandRequest(id, payload)
	if err != nil {
		cm.failed(componentName, commandName, err)
		return types.NewCommandResponse(types.StatusBadRequest, types.FromString(err.Error())), nil
	}

	resp, err := invokeCommand(ctx, handler, req, userContext)
	if err != nil {
		cm.failed(componentName, commandName, err)
		status := types.StatusBadRequest
		var ackErr *types.AckError
		if errors.As(err, &ackErr) {
			status = ackErr.Code
		}
		return types.NewCommandResponse(status, types.FromString(err.Error())), nil
	}
	if resp == nil {
		resp = types.NewCommandResponse(types.StatusCompleted, types.Value{})
	}
	return resp, nil
}

// Invoke is Dispatch with every failure mapped to a status: 404 when no
// handler matched, 400 for a malformed identifier.
func (cm *CommandModule) Invoke(ctx context.Context, id string, payload []byte) *types.CommandResponse {
	resp, err := cm.Dispatch(ctx, id, payload)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrCommandNotFound):
		resp = types.NewCommandResponse(types.StatusNotFound, types.FromString(err.Error()))
	default:
		resp = types.NewCommandResponse(types.StatusBadRequest, types.FromString(err.Error()))
	}
	metrics.CommandsHandled.WithLabelValues(metrics.Code(resp.Status)).Inc()
	return resp
}

func (cm *CommandModule) failed(componentName, commandName string, err error) {
	cm.context.Diagnose(&dtcontext.DiagnosticEvent{
		Kind:      dtcontext.DiagCommandFailed,
		Component: componentName,
		Name:      commandName,
		Err:       err,
	})
}

func invokeCommand(ctx context.Context, handler component.CommandHandler, req *types.CommandRequest, userContext interface{}) (resp *types.CommandResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("command handler for %q panicked: %v", req.CommandName, r)
			resp = nil
			err = types.Reject(types.StatusInternal, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler(ctx, req, userContext)
}

package dtmodule

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jwzl/edgepnp/pnp/metrics"
	"github.com/jwzl/edgepnp/pnp/types"
)

func echoHandler(tag string) func(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
	return func(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
		return types.NewCommandResponse(types.StatusCompleted, types.FromString(tag)), nil
	}
}

func TestDispatchRouting(t *testing.T) {
	mt := newModuleTest()
	mt.registry.RegisterComponent("thermostat1")
	mt.registry.RegisterCommandHandler("thermostat1", "getMaxMinReport", echoHandler("component"), nil)
	mt.registry.RegisterCommandHandler("", "getMaxMinReport", echoHandler("root"), nil)

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"component scoped", "thermostat1*getMaxMinReport", "component"},
		{"root scoped", "getMaxMinReport", "root"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp, err := mt.command().Dispatch(context.TODO(), test.id, nil)
			if err != nil {
				t.Fatalf("Dispatch err = %v", err)
			}
			if s, _ := resp.Result.Str(); s != test.want || resp.Status != types.StatusCompleted {
				t.Errorf("Dispatch() = %d %v, want %s", resp.Status, resp.Result, test.want)
			}
		})
	}
}

func TestDispatchDefaultHandler(t *testing.T) {
	mt := newModuleTest()

	_, err := mt.command().Dispatch(context.TODO(), "thermostat1*reboot", nil)
	if !errors.Is(err, types.ErrCommandNotFound) {
		t.Errorf("err = %v, want ErrCommandNotFound", err)
	}
	if resp := mt.command().Invoke(context.TODO(), "reboot", nil); resp.Status != types.StatusNotFound {
		t.Errorf("Invoke() status = %d, want 404", resp.Status)
	}

	mt2 := newModuleTest()
	var got *types.CommandRequest
	var gotContext interface{}
	mt2.registry.RegisterDefaultCommandHandler(func(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
		got, gotContext = req, userContext
		return nil, nil
	}, "user")

	resp, err := mt2.command().Dispatch(context.TODO(), "thermostat1*reboot", []byte(`5`))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if resp.Status != types.StatusCompleted || !resp.Result.IsEmpty() {
		t.Errorf("resp = %+v", resp)
	}
	if got.ComponentName != "thermostat1" || got.CommandName != "reboot" || gotContext != "user" {
		t.Errorf("default handler got %+v %v", got, gotContext)
	}
	if n, _ := got.Payload.Int64(); n != 5 {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestDispatchFailures(t *testing.T) {
	mt := newModuleTest()
	mt.registry.RegisterCommandHandler("", "decode", func(ctx context.Context, req *types.CommandRequest, uc interface{}) (*types.CommandResponse, error) {
		var delay int
		if err := req.Decode(&delay); err != nil {
			return nil, err
		}
		return types.NewCommandResponse(types.StatusCompleted, types.FromInt(delay)), nil
	}, nil)
	mt.registry.RegisterCommandHandler("", "panic", func(ctx context.Context, req *types.CommandRequest, uc interface{}) (*types.CommandResponse, error) {
		panic("boom")
	}, nil)

	tests := []struct {
		name    string
		id      string
		payload string
		status  int
	}{
		{"decoded", "decode", `7`, types.StatusCompleted},
		{"decode failure", "decode", `"seven"`, types.StatusBadRequest},
		{"malformed payload", "decode", `{`, types.StatusBadRequest},
		{"panic", "panic", ``, types.StatusInternal},
		{"empty identifier", "", ``, types.StatusBadRequest},
		{"malformed identifier", "*decode", ``, types.StatusBadRequest},
		{"unknown", "nope", ``, types.StatusNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := mt.command().Invoke(context.TODO(), test.id, []byte(test.payload))
			if resp == nil || resp.Status != test.status {
				t.Errorf("Invoke(%q, %s) = %+v, want status %d", test.id, test.payload, resp, test.status)
			}
		})
	}

	if _, err := mt.command().Dispatch(context.TODO(), "", nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Dispatch(\"\") err = %v", err)
	}
}

func TestInvokeCountsStatus(t *testing.T) {
	mt := newModuleTest()
	cm := mt.command()

	notFound := metrics.CommandsHandled.WithLabelValues("404")
	before := testutil.ToFloat64(notFound)
	if resp := cm.Invoke(context.TODO(), "nobody*home", nil); resp.Status != types.StatusNotFound {
		t.Fatalf("Invoke() status = %d", resp.Status)
	}
	if got := testutil.ToFloat64(notFound); got != before+1 {
		t.Errorf("commands_total{status=404} = %v, want %v", got, before+1)
	}
}

package component

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/jwzl/edgepnp/pnp/types"
)

func noopWritable(ctx context.Context, u *types.WritablePropertyUpdate) (*types.WritablePropertyResult, error) {
	return nil, nil
}

func noopCommand(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
	return types.NewCommandResponse(types.StatusCompleted, types.Value{}), nil
}

func TestRegisterComponent(t *testing.T) {
	r := NewRegistry()

	c, err := r.RegisterComponent("thermostat1")
	if err != nil {
		t.Fatalf("RegisterComponent err = %v", err)
	}
	if c.Name() != "thermostat1" || c.Parent() != r.Root() {
		t.Errorf("component = %q parent %v", c.Name(), c.Parent())
	}

	_, err = r.RegisterComponent("thermostat1")
	if !errors.Is(err, types.ErrDuplicateComponent) || !errors.Is(err, types.ErrDuplicateRegistration) {
		t.Errorf("duplicate component err = %v", err)
	}
	if got, _ := r.Lookup("thermostat1"); got != c {
		t.Errorf("duplicate registration replaced the component")
	}

	if _, err := r.RegisterComponent(""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("empty name err = %v", err)
	}

	sub, err := r.RegisterSubComponent(c, "sensor")
	if err != nil || sub.Parent() != c {
		t.Errorf("RegisterSubComponent = %v %v", sub, err)
	}
	if _, err := r.RegisterSubComponent(r.Root(), "sensor"); err != nil {
		t.Errorf("same name at another level err = %v", err)
	}
}

func TestAddProperty(t *testing.T) {
	r := NewRegistry()
	r.RegisterComponent("thermostat1")
	r.RegisterComponent("thermostat2")

	tests := []struct {
		name      string
		component string
		property  string
		want      error
	}{
		{"root", "", "serialNumber", nil},
		{"component", "thermostat1", "maxTempSinceLastReboot", nil},
		{"same name other component", "thermostat2", "maxTempSinceLastReboot", nil},
		{"duplicate", "thermostat1", "maxTempSinceLastReboot", types.ErrDuplicateProperty},
		{"empty name", "thermostat1", "", types.ErrInvalidArgument},
		{"unknown component", "nope", "x", types.ErrInvalidArgument},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := r.AddProperty(test.component, test.property, types.FromInt(0))
			if test.want == nil {
				if err != nil {
					t.Errorf("err = %v", err)
				}
				return
			}
			if !errors.Is(err, test.want) {
				t.Errorf("err = %v, want %v", err, test.want)
			}
		})
	}

	c, _ := r.Lookup("thermostat1")
	if n := len(c.Properties()); n != 1 {
		t.Errorf("thermostat1 has %d properties after a failed duplicate, want 1", n)
	}
}

func TestWritableHandler(t *testing.T) {
	r := NewRegistry()
	r.RegisterComponent("thermostat1")

	if err := r.AddWritableProperty("thermostat1", "targetTemperature", types.FromFloat64(0), noopWritable); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := r.AddWritableProperty("thermostat1", "other", types.Value{}, nil); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("nil handler err = %v", err)
	}
	r.AddProperty("thermostat1", "readOnly", types.Value{})

	if _, p, ok := r.WritableHandler("thermostat1", "targetTemperature"); !ok || !p.Writable {
		t.Errorf("handler not found")
	}
	if _, _, ok := r.WritableHandler("", "targetTemperature"); ok {
		t.Errorf("root must not see component handler")
	}
	if _, _, ok := r.WritableHandler("thermostat1", "readOnly"); ok {
		t.Errorf("read-only property has a handler")
	}
}

func TestCommandHandler(t *testing.T) {
	r := NewRegistry()
	r.RegisterComponent("thermostat1")

	if err := r.RegisterCommandHandler("thermostat1", "getMaxMinReport", noopCommand, "t1"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := r.RegisterCommandHandler("", "getMaxMinReport", noopCommand, "root"); err != nil {
		t.Fatalf("err = %v", err)
	}
	if err := r.RegisterCommandHandler("", "getMaxMinReport", noopCommand, nil); !errors.Is(err, types.ErrDuplicateRegistration) {
		t.Errorf("duplicate command err = %v", err)
	}

	_, uc, isDefault, err := r.CommandHandler("thermostat1", "getMaxMinReport")
	if err != nil || uc != "t1" || isDefault {
		t.Errorf("CommandHandler = %v %v %v", uc, isDefault, err)
	}

	if _, _, _, err := r.CommandHandler("", "reboot"); !errors.Is(err, types.ErrCommandNotFound) {
		t.Errorf("unmatched err = %v", err)
	}

	r.RegisterDefaultCommandHandler(noopCommand, "fallback")
	_, uc, isDefault, err = r.CommandHandler("", "reboot")
	if err != nil || uc != "fallback" || !isDefault {
		t.Errorf("default CommandHandler = %v %v %v", uc, isDefault, err)
	}
}

func TestSeal(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	r.Seal()

	if !r.Sealed() {
		t.Fatalf("registry not sealed")
	}
	if _, err := r.RegisterComponent("x"); !errors.Is(err, types.ErrRegistrySealed) {
		t.Errorf("RegisterComponent err = %v", err)
	}
	if err := r.AddProperty("", "x", types.Value{}); !errors.Is(err, types.ErrRegistrySealed) {
		t.Errorf("AddProperty err = %v", err)
	}
	if err := r.RegisterDefaultCommandHandler(noopCommand, nil); !errors.Is(err, types.ErrRegistrySealed) {
		t.Errorf("RegisterDefaultCommandHandler err = %v", err)
	}
}

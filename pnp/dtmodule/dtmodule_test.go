package dtmodule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/types"
)

type fakeTransport struct {
	sync.Mutex
	patches   []string
	telemetry []*types.TelemetryMessage
	failNext  error
	// delay holds every send open, overlapped records concurrent sends.
	delay      time.Duration
	active     int32
	overlapped int32
}

func (f *fakeTransport) enter() {
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.StoreInt32(&f.overlapped, 1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeTransport) leave() {
	atomic.AddInt32(&f.active, -1)
}

func (f *fakeTransport) SendReportedPropertyPatch(ctx context.Context, patch []byte) error {
	f.enter()
	defer f.leave()
	f.Lock()
	defer f.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.patches = append(f.patches, string(patch))
	return nil
}

func (f *fakeTransport) SendTelemetry(ctx context.Context, msg *types.TelemetryMessage) error {
	f.enter()
	defer f.leave()
	f.Lock()
	defer f.Unlock()
	f.telemetry = append(f.telemetry, msg)
	return nil
}

type moduleTest struct {
	registry  *component.Registry
	transport *fakeTransport
	context   *dtcontext.DTContext
	events    []*dtcontext.DiagnosticEvent
}

func newModuleTest() *moduleTest {
	mt := &moduleTest{
		registry:  component.NewRegistry(),
		transport: &fakeTransport{},
	}
	mt.context = dtcontext.NewDTContext(mt.registry, mt.transport, nil, nil)
	mt.context.SetDiagnostics(func(ev *dtcontext.DiagnosticEvent) {
		mt.events = append(mt.events, ev)
	})
	RegisterAll(mt.context)
	return mt
}

func (mt *moduleTest) property() *PropertyModule {
	m, _ := mt.context.GetModule(PropertyModuleName)
	return m.(*PropertyModule)
}

func (mt *moduleTest) command() *CommandModule {
	m, _ := mt.context.GetModule(CommandModuleName)
	return m.(*CommandModule)
}

func (mt *moduleTest) telemetry() *TelemetryModule {
	m, _ := mt.context.GetModule(TelemetryModuleName)
	return m.(*TelemetryModule)
}

func TestRegisterAll(t *testing.T) {
	mt := newModuleTest()
	for _, name := range []string{PropertyModuleName, CommandModuleName, TelemetryModuleName} {
		if _, exist := mt.context.GetModule(name); !exist {
			t.Errorf("module %s is missing", name)
		}
	}
	if NewDTModule("nope") != nil {
		t.Errorf("unknown module name should give nil")
	}
}

func TestDispatchSealsRegistry(t *testing.T) {
	mt := newModuleTest()
	mt.command().Invoke(context.TODO(), "reboot", nil)

	if _, err := mt.registry.RegisterComponent("late"); !errors.Is(err, types.ErrRegistrySealed) {
		t.Errorf("registration after dispatch err = %v", err)
	}
}

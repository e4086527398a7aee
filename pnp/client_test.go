package pnp

import (
	"context"
	"sync"
	"testing"

	"github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/jwzl/edgepnp/common"
	"github.com/jwzl/edgepnp/pnp/convention"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/dtmodule"
	"github.com/jwzl/edgepnp/pnp/types"
)

type recordingTransport struct {
	sync.Mutex
	patches   []string
	telemetry []*types.TelemetryMessage
	twin      []byte
}

func (r *recordingTransport) SendReportedPropertyPatch(ctx context.Context, patch []byte) error {
	r.Lock()
	defer r.Unlock()
	r.patches = append(r.patches, string(patch))
	return nil
}

func (r *recordingTransport) SendTelemetry(ctx context.Context, msg *types.TelemetryMessage) error {
	r.Lock()
	defer r.Unlock()
	r.telemetry = append(r.telemetry, msg)
	return nil
}

type twinTransport struct {
	recordingTransport
}

func (t *twinTransport) GetTwin(ctx context.Context) ([]byte, error) {
	return t.twin, nil
}

func newClient(t *testing.T, transport dtcontext.Transport) *DeviceClient {
	dc, err := NewDeviceClient(&Config{Transport: transport})
	if err != nil {
		t.Fatalf("NewDeviceClient err = %v", err)
	}
	return dc
}

func TestNewDeviceClient(t *testing.T) {
	g := gomega.NewGomegaWithT(t)

	_, err := NewDeviceClient(&Config{})
	g.Expect(errors.Is(err, types.ErrInvalidArgument)).To(gomega.BeTrue())

	dc := newClient(t, &recordingTransport{})
	g.Expect(dc.property).NotTo(gomega.BeNil())
	g.Expect(dc.command).NotTo(gomega.BeNil())
	g.Expect(dc.telemetry).NotTo(gomega.BeNil())
}

func TestThermostatScenario(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &recordingTransport{}
	dc := newClient(t, transport)

	_, err := dc.RegisterComponent("thermostat1")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(dc.AddWritableProperty("thermostat1", "targetTemperature", types.FromFloat64(0),
		func(ctx context.Context, u *types.WritablePropertyUpdate) (*types.WritablePropertyResult, error) {
			return &types.WritablePropertyResult{Description: "Successfully updated target temperature"}, nil
		})).To(gomega.Succeed())

	outcomes, err := dc.OnDesiredPropertyPatchBytes(context.TODO(), []byte(`{"thermostat1":{"targetTemperature":35.0,"$version":3}}`))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(outcomes).To(gomega.HaveLen(1))
	g.Expect(transport.patches).To(gomega.HaveLen(2))
	g.Expect(transport.patches[0]).To(gomega.MatchJSON(`{"thermostat1":{"__t":"c","targetTemperature":{"value":35,"ac":202,"av":3}}}`))
	g.Expect(transport.patches[1]).To(gomega.MatchJSON(`{"thermostat1":{"__t":"c","targetTemperature":{"value":35,"ac":200,"av":3,"ad":"Successfully updated target temperature"}}}`))

	_, err = dc.RegisterComponent("thermostat2")
	g.Expect(errors.Is(err, types.ErrRegistrySealed)).To(gomega.BeTrue())
}

func TestUpdateProperties(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &recordingTransport{}
	dc := newClient(t, transport)

	g.Expect(dc.UpdateProperty(context.TODO(), "", "serialNumber", types.FromString("SR-123"))).To(gomega.Succeed())
	g.Expect(dc.UpdateProperty(context.TODO(), "thermostat1", "maxTempSinceLastReboot", types.FromFloat64(38.5))).To(gomega.Succeed())

	info := types.NewPropertyCollection()
	info.Set("manufacturer", types.FromString("contoso"))
	info.Set("model", types.Value{})
	g.Expect(dc.UpdateProperties(context.TODO(), "deviceInformation", info, nil)).To(gomega.Succeed())

	keepEmpty, _ := convention.NewJSONConvention()
	g.Expect(dc.UpdateProperties(context.TODO(), "", info, keepEmpty)).To(gomega.Succeed())

	g.Expect(dc.RespondToWritableProperty(context.TODO(), "", "temperatureRange",
		types.NewWritablePropertyResponse(types.FromString("30-40"), types.StatusCompleted, 1, "ok"))).To(gomega.Succeed())

	g.Expect(transport.patches).To(gomega.Equal([]string{
		`{"serialNumber":"SR-123"}`,
		`{"thermostat1":{"__t":"c","maxTempSinceLastReboot":38.5}}`,
		`{"deviceInformation":{"__t":"c","manufacturer":"contoso"}}`,
		`{"manufacturer":"contoso","model":null}`,
		`{"temperatureRange":{"value":"30-40","ac":200,"av":1,"ad":"ok"}}`,
	}))

	g.Expect(errors.Is(dc.UpdateProperties(context.TODO(), "", nil, nil), types.ErrInvalidArgument)).To(gomega.BeTrue())
	g.Expect(errors.Is(dc.RespondToWritableProperty(context.TODO(), "", "x", nil), types.ErrInvalidArgument)).To(gomega.BeTrue())
}

func TestSendTelemetry(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &recordingTransport{}
	dc := newClient(t, transport)

	err := dc.SendTelemetry(context.TODO(), "thermostat1", map[string]string{"property1": "myValue"}, nil,
		dtmodule.TelemetryPoint{Name: "temperature", Value: types.FromFloat64(21.5)})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	g.Expect(transport.telemetry).To(gomega.HaveLen(1))
	msg := transport.telemetry[0]
	g.Expect(string(msg.Payload)).To(gomega.Equal(`{"temperature":21.5}`))
	g.Expect(msg.ComponentName).To(gomega.Equal("thermostat1"))
	g.Expect(msg.Properties).To(gomega.HaveKeyWithValue("property1", "myValue"))
}

func TestConnectionStatus(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &recordingTransport{}
	dc := newClient(t, transport)

	var got []string
	dc.SetConnectionStatusHandler(func(status, reason string) {
		got = append(got, status+":"+reason)
	})

	dc.OnConnectionStatusChanged(dtcontext.ConnectionDisconnected, "network")
	err := dc.UpdateProperty(context.TODO(), "", "serialNumber", types.FromString("x"))
	g.Expect(errors.Is(err, types.ErrNotConnected)).To(gomega.BeTrue())

	dc.OnConnectionStatusChanged(dtcontext.ConnectionConnected, "ok")
	g.Expect(dc.UpdateProperty(context.TODO(), "", "serialNumber", types.FromString("x"))).To(gomega.Succeed())
	g.Expect(got).To(gomega.Equal([]string{"Disconnected:network", "Connected:ok"}))
	g.Expect(transport.patches).To(gomega.HaveLen(1))
}

func TestGetPropertiesAndSync(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &twinTransport{}
	transport.twin = []byte(`{"desired":{"targetTemperature":30,"$version":5},"reported":{"serialNumber":"SR-1"}}`)
	dc := newClient(t, transport)

	var versions []int64
	g.Expect(dc.AddWritableProperty("", "targetTemperature", types.FromFloat64(0),
		func(ctx context.Context, u *types.WritablePropertyUpdate) (*types.WritablePropertyResult, error) {
			versions = append(versions, u.Version)
			return nil, nil
		})).To(gomega.Succeed())

	props, err := dc.GetProperties(context.TODO())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	sn, ok := props.Get("serialNumber")
	g.Expect(ok).To(gomega.BeTrue())
	g.Expect(sn.String()).To(gomega.Equal("SR-1"))

	outcomes, err := dc.SyncWritableProperties(context.TODO())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(outcomes).To(gomega.HaveLen(1))
	g.Expect(versions).To(gomega.Equal([]int64{5}))
	g.Expect(transport.patches).To(gomega.HaveLen(2))
}

func TestGetPropertiesWithoutReader(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	dc := newClient(t, &recordingTransport{})

	props, err := dc.GetProperties(context.TODO())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(props.Writable().Len()).To(gomega.Equal(0))
}

func TestHandleMessage(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	transport := &recordingTransport{}
	dc := newClient(t, transport)

	g.Expect(dc.RegisterCommandHandler("", "reboot",
		func(ctx context.Context, req *types.CommandRequest, uc interface{}) (*types.CommandResponse, error) {
			return types.NewCommandResponse(types.StatusCompleted, types.FromString("rebooting")), nil
		}, nil)).To(gomega.Succeed())

	resp, err := dc.HandleMessage(context.TODO(), common.BuildMethodMessage("rid-7", "reboot", []byte(`1`)))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	status, err := common.ParseMethodResponseResource(resp.GetResource())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(status).To(gomega.Equal(200))
	g.Expect(resp.GetTag()).To(gomega.Equal("rid-7"))
	g.Expect(resp.Content).To(gomega.Equal([]byte(`"rebooting"`)))

	resp, err = dc.HandleMessage(context.TODO(), common.BuildMethodMessage("rid-8", "nope", nil))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	status, _ = common.ParseMethodResponseResource(resp.GetResource())
	g.Expect(status).To(gomega.Equal(404))

	resp, err = dc.HandleMessage(context.TODO(), common.BuildDesiredMessage([]byte(`{"unobserved":1,"$version":2}`)))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(resp).To(gomega.BeNil())
	g.Expect(transport.patches).To(gomega.BeEmpty())

	_, err = dc.HandleMessage(context.TODO(), common.BuildConnectionMessage(dtcontext.ConnectionDisabled, "closed"))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	status2, reason := dc.ConnectionStatus()
	g.Expect(status2).To(gomega.Equal(dtcontext.ConnectionDisabled))
	g.Expect(reason).To(gomega.Equal("closed"))

	_, err = dc.HandleMessage(context.TODO(), common.BuildModelMessage(common.CloudName, common.DeviceModuleName, "Get", "unknown", nil))
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestDesiredPatchMergedIntoSnapshot(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	dc := newClient(t, &recordingTransport{})

	_, err := dc.OnDesiredPropertyPatchBytes(context.TODO(), []byte(`{"thermostat1":{"targetTemperature":35},"$version":3}`))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = dc.OnDesiredPropertyPatchBytes(context.TODO(), []byte(`{"thermostat1":{"mode":"eco"},"$version":4}`))
	g.Expect(err).NotTo(gomega.HaveOccurred())

	props, err := dc.GetProperties(context.TODO())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(props.Writable().Version()).To(gomega.Equal(int64(4)))
	desired, err := props.Writable().Serialize()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(desired).To(gomega.MatchJSON(`{"thermostat1":{"mode":"eco","targetTemperature":35}}`))
}

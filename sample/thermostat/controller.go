package thermostat

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/config"
	"github.com/jwzl/edgepnp/devicemodel"
	"github.com/jwzl/edgepnp/pnp"
	"github.com/jwzl/edgepnp/pnp/dtcontext"
	"github.com/jwzl/edgepnp/pnp/metrics"
	"github.com/jwzl/edgepnp/transport/mqtt"
)

// Controller wires the MQTT transport, the device client and the device.
type Controller struct {
	modelPath string
	ctx       context.Context
	cancel    context.CancelFunc
	mqtt      *mqtt.Client
}

func NewController(modelPath string) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		modelPath: modelPath,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the device until Stop is called.
func (tc *Controller) Start() error {
	devConf, err := config.GetDeviceConfig()
	if err != nil {
		return errors.Wrap(err, "device configuration")
	}
	if tc.modelPath != "" {
		devConf.ModelPath = tc.modelPath
	}
	mqttConf, err := config.GetMqttConfig()
	if err != nil {
		return errors.Wrap(err, "mqtt configuration")
	}

	model, err := devicemodel.Load(devConf.ModelPath)
	if err != nil {
		return err
	}
	klog.Infof("device %s uses model %s", devConf.ID, model.ID)

	tc.mqtt = mqtt.NewClient(mqttConf)
	if tc.mqtt == nil {
		return errors.New("failed to create mqtt client, please check your conf file")
	}

	client, err := pnp.NewDeviceClient(&pnp.Config{
		Transport:   tc.mqtt,
		Diagnostics: logDiagnostic,
	})
	if err != nil {
		return err
	}
	client.SetConnectionStatusHandler(func(status, reason string) {
		klog.Infof("connection status %s: %s", status, reason)
	})

	device := NewDevice(client)
	if err := model.Declare(client.Registry(), device); err != nil {
		return errors.Wrap(err, "declare device model")
	}

	if err := tc.mqtt.Start(tc.ctx); err != nil {
		return err
	}
	defer tc.mqtt.Close()

	if devConf.MetricsAddress != "" {
		go func() {
			if err := metrics.Serve(tc.ctx, devConf.MetricsAddress); err != nil {
				klog.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	go func() {
		if err := tc.mqtt.Serve(tc.ctx, client.HandleMessage); err != nil {
			klog.Warningf("serve loop stopped: %v", err)
		}
	}()

	return Run(tc.ctx, client, device, devConf.TelemetryInterval)
}

// Stop ends Start.
func (tc *Controller) Stop() {
	tc.cancel()
}

// Run performs the temperature controller workflow: it reads the twin,
// catches up on pending writable properties, reports the static properties
// and then sends telemetry every interval until ctx is done.
func Run(ctx context.Context, client *pnp.DeviceClient, device *Device, interval time.Duration) error {
	props, err := client.GetProperties(ctx)
	if err != nil {
		klog.Warningf("failed to get properties: %v", err)
	} else {
		if v, ok := props.Writable().Get(propertySerialNumber); ok {
			klog.Infof("Found writable property request %q: %v", propertySerialNumber, v)
		}
		if v, ok := props.Get(propertySerialNumber); ok {
			klog.Infof("Reported %q: %v", propertySerialNumber, v)
		}
		if _, err := client.SyncWritableProperties(ctx); err != nil {
			klog.Warningf("failed to sync writable properties: %v", err)
		}
	}

	if err := device.UpdateDeviceInformation(ctx); err != nil {
		return err
	}
	if err := device.SendSerialNumber(ctx); err != nil {
		return err
	}
	if err := device.SendInitialPropertyUpdates(ctx, Thermostat2); err != nil {
		return err
	}

	reset := true
	for {
		reset, err = device.Tick(ctx, reset)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			klog.Warningf("telemetry round failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func logDiagnostic(event *dtcontext.DiagnosticEvent) {
	klog.Warningf("%s: component=%q name=%q version=%d: %v", event.Kind, event.Component, event.Name, event.Version, event.Err)
}

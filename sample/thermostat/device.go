package thermostat

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"k8s.io/klog"

	"github.com/jwzl/edgepnp/pnp"
	"github.com/jwzl/edgepnp/pnp/component"
	"github.com/jwzl/edgepnp/pnp/convention"
	"github.com/jwzl/edgepnp/pnp/dtmodule"
	"github.com/jwzl/edgepnp/pnp/types"
)

const (
	Thermostat1       = "thermostat1"
	Thermostat2       = "thermostat2"
	DeviceInformation = "deviceInformation"
	SerialNumber      = "SR-123456"

	propertySerialNumber     = "serialNumber"
	propertyTargetTemp       = "targetTemperature"
	propertyMaxTemp          = "maxTempSinceLastReboot"
	propertyInitialValue     = "initialValue"
	propertyTemperatureRange = "temperatureRange"
	commandReboot            = "reboot"
	commandMaxMinReport      = "getMaxMinReport"
	telemetryTemperature     = "temperature"
	telemetryWorkingSet      = "workingSet"
	telemetryDeviceHealth    = "deviceHealth"
)

type reading struct {
	at    time.Time
	value float64
}

// MaxMinReport is the result of getMaxMinReport.
type MaxMinReport struct {
	MaxTemp   float64   `json:"maxTemp"`
	MinTemp   float64   `json:"minTemp"`
	AvgTemp   float64   `json:"avgTemp"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type DeviceHealth struct {
	Status               string    `json:"status"`
	RunningTimeInSeconds float64   `json:"runningTimeInSeconds"`
	IsStopRequested      bool      `json:"isStopRequested"`
	StartTime            time.Time `json:"startTime"`
}

type InitialValue struct {
	Temperature int `json:"temp"`
	Humidity    int `json:"humidity"`
}

type TemperatureRange struct {
	MaxTemperature int `json:"maxTemp"`
	MinTemperature int `json:"minTemp"`
}

// Device is a temperature controller with two thermostats. It binds the
// handlers of the device model and drives the reporting loop.
type Device struct {
	client *pnp.DeviceClient
	// custom convention, suppresses default values.
	custom convention.Convention

	mutex       sync.Mutex
	temperature map[string]float64
	maxTemp     map[string]float64
	readings    map[string][]reading
	startTime   time.Time

	stepDelay time.Duration
	now       func() time.Time
	random    *rand.Rand
}

// NewDevice creates the device on client.
func NewDevice(client *pnp.DeviceClient) *Device {
	custom, err := convention.NewJSONConvention(convention.WithOmitDefaults(true))
	if err != nil {
		klog.Fatalf("custom convention: %v", err)
	}

	return &Device{
		client:      client,
		custom:      custom,
		temperature: map[string]float64{Thermostat1: 0, Thermostat2: 0},
		maxTemp:     map[string]float64{Thermostat1: 0, Thermostat2: 0},
		readings:    make(map[string][]reading),
		startTime:   time.Now(),
		stepDelay:   6 * time.Second,
		now:         time.Now,
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WritableHandler binds the writable properties of the device model.
func (d *Device) WritableHandler(componentName, handler string) (component.WritablePropertyHandler, bool) {
	switch handler {
	case propertyTargetTemp:
		return d.targetTemperature, true
	}
	return nil, false
}

// CommandHandler binds the commands of the device model. The component name
// is the user context of getMaxMinReport.
func (d *Device) CommandHandler(componentName, handler string) (component.CommandHandler, interface{}, bool) {
	switch handler {
	case commandReboot:
		return d.reboot, nil, true
	case commandMaxMinReport:
		return d.maxMinReport, componentName, true
	}
	return nil, nil, false
}

// reboot waits the requested number of seconds, then resets every reading.
func (d *Device) reboot(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
	var delay int
	if err := req.Decode(&delay); err != nil {
		klog.Warningf("Command input is invalid: %v", err)
		return types.NewCommandResponse(types.StatusBadRequest, types.Value{}), nil
	}

	klog.Infof("Command: Received - Rebooting thermostat (resetting temperature reading to 0 after %d seconds)", delay)
	select {
	case <-time.After(time.Duration(delay) * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.mutex.Lock()
	for name := range d.temperature {
		d.temperature[name] = 0
		d.maxTemp[name] = 0
	}
	d.readings = make(map[string][]reading)
	d.mutex.Unlock()

	return types.NewCommandResponse(types.StatusCompleted, types.Value{}), nil
}

// maxMinReport summarises the readings of one thermostat since the requested time.
func (d *Device) maxMinReport(ctx context.Context, req *types.CommandRequest, userContext interface{}) (*types.CommandResponse, error) {
	componentName, _ := userContext.(string)

	var since time.Time
	if err := req.Decode(&since); err != nil {
		klog.Warningf("Command input is invalid: %v", err)
		return types.NewCommandResponse(types.StatusBadRequest, types.Value{}), nil
	}

	report, ok := d.Report(componentName, since)
	if !ok {
		klog.Infof("Command: component=%q, no relevant readings found since %v, cannot generate any report", componentName, since)
		return types.NewCommandResponse(types.StatusNotFound, types.Value{}), nil
	}

	klog.Infof("Command: component=%q, MaxMinReport since %v: maxTemp=%v, minTemp=%v, avgTemp=%v",
		componentName, since, report.MaxTemp, report.MinTemp, report.AvgTemp)
	return types.NewCommandResponse(types.StatusCompleted, types.FromObject(report)), nil
}

// Report computes the max/min/avg of the readings taken after since.
func (d *Device) Report(componentName string, since time.Time) (*MaxMinReport, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	var report *MaxMinReport
	sum := 0.0
	count := 0
	for _, r := range d.readings[componentName] {
		if !r.at.After(since) {
			continue
		}
		if report == nil {
			report = &MaxMinReport{MaxTemp: r.value, MinTemp: r.value, StartTime: r.at, EndTime: r.at}
		}
		report.MaxTemp = math.Max(report.MaxTemp, r.value)
		report.MinTemp = math.Min(report.MinTemp, r.value)
		if r.at.Before(report.StartTime) {
			report.StartTime = r.at
		}
		if r.at.After(report.EndTime) {
			report.EndTime = r.at
		}
		sum += r.value
		count++
	}
	if report == nil {
		return nil, false
	}
	report.AvgTemp = sum / float64(count)
	return report, true
}

// targetTemperature moves the thermostat to the target in two steps. The
// protocol has already acknowledged the request as in progress.
func (d *Device) targetTemperature(ctx context.Context, update *types.WritablePropertyUpdate) (*types.WritablePropertyResult, error) {
	target, ok := update.Value.Float64()
	if !ok {
		return nil, types.Reject(types.StatusBadRequest, "targetTemperature must be a number")
	}
	klog.Infof("Property: Received - component=%q, {%q: %v}", update.ComponentName, update.PropertyName, target)

	d.mutex.Lock()
	step := (target - d.temperature[update.ComponentName]) / 2
	d.mutex.Unlock()

	for i := 0; i < 2; i++ {
		d.mutex.Lock()
		d.temperature[update.ComponentName] = round(d.temperature[update.ComponentName] + step)
		d.mutex.Unlock()

		select {
		case <-time.After(d.stepDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &types.WritablePropertyResult{
		Value:       types.FromFloat64(d.Temperature(update.ComponentName)),
		Description: "Successfully updated target temperature",
	}, nil
}

// Temperature returns the current reading of a thermostat.
func (d *Device) Temperature(componentName string) float64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.temperature[componentName]
}

// UpdateDeviceInformation reports the deviceInformation component.
func (d *Device) UpdateDeviceInformation(ctx context.Context) error {
	info := types.NewPropertyCollection()
	info.Set("manufacturer", types.FromString("element15"))
	info.Set("model", types.FromString("ModelIDxcdvmk"))
	info.Set("swVersion", types.FromString("1.0.0"))
	info.Set("osName", types.FromString(runtime.GOOS))
	info.Set("processorArchitecture", types.FromString(runtime.GOARCH))
	info.Set("processorManufacturer", types.FromString("Intel"))
	info.Set("totalStorage", types.FromInt(256))
	info.Set("totalMemory", types.FromInt(1024))

	if err := d.client.UpdateProperties(ctx, DeviceInformation, info, nil); err != nil {
		return err
	}
	klog.Infof("Property: Update - component = %q, properties update is complete", DeviceInformation)
	return nil
}

// SendSerialNumber reports the root serialNumber property.
func (d *Device) SendSerialNumber(ctx context.Context) error {
	if err := d.client.UpdateProperty(ctx, "", propertySerialNumber, types.FromString(SerialNumber)); err != nil {
		return err
	}
	klog.Infof("Property: Update - {%q: %q} is complete", propertySerialNumber, SerialNumber)
	return nil
}

// SendInitialPropertyUpdates reports initialValue and an application-built
// temperatureRange acknowledgment on componentName.
func (d *Device) SendInitialPropertyUpdates(ctx context.Context, componentName string) error {
	initial := types.NewPropertyCollection()
	initial.Set(propertyInitialValue, types.FromObject(&InitialValue{Temperature: 55, Humidity: 68}))
	if err := d.client.UpdateProperties(ctx, componentName, initial, d.custom); err != nil {
		return err
	}

	ack := types.NewWritablePropertyResponse(
		types.FromObject(&TemperatureRange{MaxTemperature: 50, MinTemperature: 5}),
		types.StatusCompleted, 1, "The operation completed successfully.")
	if err := d.client.RespondToWritableProperty(ctx, componentName, propertyTemperatureRange, ack); err != nil {
		return err
	}
	klog.Infof("Property: Update - component=%q, initial properties are complete", componentName)
	return nil
}

// Tick runs one reporting round: thermostat temperatures, working set and
// device health. reset draws fresh random temperatures first.
func (d *Device) Tick(ctx context.Context, reset bool) (bool, error) {
	if reset {
		d.mutex.Lock()
		for name := range d.temperature {
			d.temperature[name] = round(d.random.Float64()*40 + 5)
		}
		d.mutex.Unlock()
	}

	for _, name := range []string{Thermostat1, Thermostat2} {
		if err := d.SendTemperature(ctx, name); err != nil {
			return false, err
		}
	}
	if err := d.SendDeviceMemory(ctx); err != nil {
		return false, err
	}
	if err := d.SendDeviceHealth(ctx, Thermostat1); err != nil {
		return false, err
	}

	return d.Temperature(Thermostat1) == 0 && d.Temperature(Thermostat2) == 0, nil
}

// SendTemperature sends the temperature of componentName, records the reading
// and reports a new maxTempSinceLastReboot when it rose.
func (d *Device) SendTemperature(ctx context.Context, componentName string) error {
	current := d.Temperature(componentName)
	point := dtmodule.TelemetryPoint{Name: telemetryTemperature, Value: types.FromFloat64(current)}
	if err := d.client.SendTelemetry(ctx, componentName, nil, nil, point); err != nil {
		return err
	}
	klog.V(2).Infof("Telemetry: Sent - component=%q, {%q: %v}", componentName, telemetryTemperature, current)

	d.mutex.Lock()
	d.readings[componentName] = append(d.readings[componentName], reading{at: d.now(), value: current})
	highest := d.maxTemp[componentName]
	for _, r := range d.readings[componentName] {
		highest = math.Max(highest, r.value)
	}
	raised := highest > d.maxTemp[componentName]
	d.maxTemp[componentName] = highest
	d.mutex.Unlock()

	if !raised {
		return nil
	}
	if err := d.client.UpdateProperty(ctx, componentName, propertyMaxTemp, types.FromFloat64(highest)); err != nil {
		return err
	}
	klog.Infof("Property: Update - component=%q, {%q: %v} is complete", componentName, propertyMaxTemp, highest)
	return nil
}

// SendDeviceMemory sends the memory obtained from the OS, in KB.
func (d *Device) SendDeviceMemory(ctx context.Context) error {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	workingSet := int64(stats.Sys / 1024)

	point := dtmodule.TelemetryPoint{Name: telemetryWorkingSet, Value: types.FromInt64(workingSet)}
	return d.client.SendTelemetry(ctx, "", nil, nil, point)
}

// SendDeviceHealth sends the health status on componentName with the custom
// convention and an application property.
func (d *Device) SendDeviceHealth(ctx context.Context, componentName string) error {
	health := &DeviceHealth{
		Status:               "Running",
		RunningTimeInSeconds: d.now().Sub(d.startTime).Seconds(),
		StartTime:            d.startTime,
	}
	point := dtmodule.TelemetryPoint{Name: telemetryDeviceHealth, Value: types.FromObject(health)}
	return d.client.SendTelemetry(ctx, componentName, map[string]string{"property1": "myValue"}, d.custom, point)
}

func round(v float64) float64 {
	return math.Round(v*10) / 10
}

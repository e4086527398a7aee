package config

import (
	"time"

	"github.com/jwzl/beehive/pkg/common/config"
	"k8s.io/klog"
)

type DeviceConfig struct {
	ID                string
	ModelPath         string
	TelemetryInterval time.Duration
	// MetricsAddress serves /metrics when set.
	MetricsAddress string
}

type MqttConfig struct {
	URL               string
	ClientID          string
	User              string
	Passwd            string
	CertFilePath      string
	KeyFilePath       string
	KeepAliveInterval int
	PingTimeout       int
	QOS               int
	Retain            bool
	// OperationTimeout bounds twin requests, in seconds.
	OperationTimeout int
}

func GetDeviceConfig() (*DeviceConfig, error) {
	conf := &DeviceConfig{}

	id, err := config.CONFIG.GetValue("device.id").ToString()
	if err != nil {
		klog.Errorf("Failed to get device id: %v", err)
		return nil, err
	}
	conf.ID = id

	model, err := config.CONFIG.GetValue("device.model").ToString()
	if err != nil {
		klog.Infof("device.model is empty")
		model = ""
	}
	conf.ModelPath = model

	interval, err := config.CONFIG.GetValue("device.telemetry-interval").ToInt()
	if err != nil || interval <= 0 {
		klog.Infof("device.telemetry-interval is empty")
		interval = 5
	}
	conf.TelemetryInterval = time.Duration(interval) * time.Second

	metricsAddr, err := config.CONFIG.GetValue("device.metrics-address").ToString()
	if err != nil {
		klog.Infof("device.metrics-address is empty, metrics disabled")
		metricsAddr = ""
	}
	conf.MetricsAddress = metricsAddr

	return conf, nil
}

func GetMqttConfig() (*MqttConfig, error) {
	conf := &MqttConfig{}

	url, err := config.CONFIG.GetValue("device.mqtt.broker").ToString()
	if err != nil {
		klog.Errorf("Failed to get broker url for mqtt client: %v", err)
		return nil, err
	}
	conf.URL = url

	id, err := config.CONFIG.GetValue("device.id").ToString()
	if err != nil {
		klog.Warningf("Failed to get client id: %v", err)
		return nil, err
	}
	conf.ClientID = id

	user, err := config.CONFIG.GetValue("device.mqtt.user").ToString()
	if err != nil {
		klog.Infof("device.mqtt.user is empty")
		user = ""
	}
	conf.User = user

	passwd, err := config.CONFIG.GetValue("device.mqtt.passwd").ToString()
	if err != nil {
		klog.Infof("device.mqtt.passwd is empty")
		passwd = ""
	}
	conf.Passwd = passwd

	certfile, err := config.CONFIG.GetValue("device.mqtt.certfile").ToString()
	if err != nil {
		klog.Infof("device.mqtt.certfile is empty")
		certfile = ""
	}
	conf.CertFilePath = certfile

	keyfile, err := config.CONFIG.GetValue("device.mqtt.keyfile").ToString()
	if err != nil {
		klog.Infof("device.mqtt.keyfile is empty")
		keyfile = ""
	}
	conf.KeyFilePath = keyfile

	keepAliveInterval, err := config.CONFIG.GetValue("device.mqtt.keep-alive-interval").ToInt()
	if err != nil {
		klog.Infof("device.mqtt.keep-alive-interval is empty")
		keepAliveInterval = 120
	}
	conf.KeepAliveInterval = keepAliveInterval

	pingTimeout, err := config.CONFIG.GetValue("device.mqtt.ping-timeout").ToInt()
	if err != nil {
		klog.Infof("device.mqtt.ping-timeout is empty")
		pingTimeout = 120
	}
	conf.PingTimeout = pingTimeout

	qos, err := config.CONFIG.GetValue("device.mqtt.qos").ToInt()
	if err != nil || qos < 0 || qos > 1 {
		// IoT hub brokers accept qos 0 and 1 only.
		klog.Infof("device.mqtt.qos is empty or out of range")
		qos = 1
	}
	conf.QOS = qos

	retain, err := config.CONFIG.GetValue("device.mqtt.retain").ToBool()
	if err != nil {
		klog.Infof("device.mqtt.retain is empty")
		retain = false
	}
	conf.Retain = retain

	timeout, err := config.CONFIG.GetValue("device.mqtt.operation-timeout").ToInt()
	if err != nil || timeout <= 0 {
		klog.Infof("device.mqtt.operation-timeout is empty")
		timeout = 30
	}
	conf.OperationTimeout = timeout

	return conf, nil
}

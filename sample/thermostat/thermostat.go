package thermostat

import (
	"github.com/jwzl/beehive/pkg/core"
	"github.com/jwzl/beehive/pkg/core/context"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/common"
)

type ThermostatModule struct {
	context    *context.Context
	controller *Controller
	// overrides device.model when set.
	modelPath string
}

// Register this module.
func Register(modelPath string) {
	tm := &ThermostatModule{modelPath: modelPath}
	core.Register(tm)
}

// Name
func (tm *ThermostatModule) Name() string {
	return common.ThermostatModuleName
}

// Group
func (tm *ThermostatModule) Group() string {
	return common.ModuleGroup
}

// Start this module.
func (tm *ThermostatModule) Start(c *context.Context) {
	klog.Infof("Start the thermostat module!")
	tm.context = c
	tm.controller = NewController(tm.modelPath)

	if err := tm.controller.Start(); err != nil {
		klog.Errorf("thermostat stopped: %v", err)
	}
}

// Cleanup
func (tm *ThermostatModule) Cleanup() {
	if tm.controller != nil {
		tm.controller.Stop()
	}
	tm.context.Cleanup(tm.Name())
}

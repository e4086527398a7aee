package cmd

import (
	"github.com/jwzl/beehive/pkg/core"
	"github.com/spf13/cobra"
	"k8s.io/klog"

	"github.com/jwzl/edgepnp/sample/thermostat"
)

/*
* new app command
 */
func NewAppCommand() *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use: "edgepnp",
		Long: `edgepnp runs a plug and play device against a digital twin service.
The device declares its components, properties and commands from a device
model, acknowledges writable property updates, answers commands and sends
telemetry over MQTT.`,
		Run: func(cmd *cobra.Command, args []string) {
			klog.Infof("###########  Start the edgepnp device...! ###########")
			registerModules(modelPath)
			// start all modules
			core.Run()
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "device model file, overrides device.model")

	return cmd
}

// register all module into beehive.
func registerModules(modelPath string) {
	thermostat.Register(modelPath)
}

package common

const (
	// beehive module names and group.
	DeviceModuleName     = "edge/pnp"
	TransportModuleName  = "edge/transport"
	ThermostatModuleName = "edge/thermostat"
	ModuleGroup          = "edgepnp"

	// Resources of inbound deliveries.
	PNP_RESOURCE_DESIRED    = "twin/desired"
	PNP_RESOURCE_METHODS    = "methods"
	PNP_RESOURCE_CONNECTION = "connection"

	// Operations of inbound deliveries.
	PNP_OPS_PATCH    = "Patch"
	PNP_OPS_INVOKE   = "Invoke"
	PNP_OPS_RESPONSE = "Response"
	PNP_OPS_STATUS   = "Status"

	// Sources and targets.
	CloudName  = "cloud"
	DeviceName = "device"
)

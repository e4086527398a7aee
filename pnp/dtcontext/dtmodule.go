package dtcontext

// DTModule is a protocol module bound to a device context.
type DTModule interface {
	Name() string
	// InitModule hands the shared context to the module.
	InitModule(dtc *DTContext)
}

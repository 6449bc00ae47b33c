// Package runtime implements the single-slot application host: the
// application slot, the lifecycle manager that performs its transitions and
// the uniform Result every control operation returns.
//
//	Uninstalled --install--> Installed --start--> Running
//
// Remove and stop are accepted but define no transition; they always report
// "Not yet implemented". A failed install leaves the slot Uninstalled.
package runtime

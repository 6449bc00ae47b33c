/*
Package monitoring provides Prometheus metrics for the application host.

It tracks control requests (latency, sizes, status by route), lifecycle
operations (install, start, status, ...) by result code, the state of the
application slot and the loader circuit breaker.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "install")
	// ... perform operation ...
	timer.Stop(200)

The registry is served by Metrics.Handler on its own listener so the control
surface keeps its fixed routing table.
*/
package monitoring

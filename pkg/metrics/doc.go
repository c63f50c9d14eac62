/*
Package metrics provides Prometheus instrumentation for Sentinel.

All collectors are package-level variables registered at init, following the
usual client_golang pattern: components reference them directly
(metrics.LogWindowsEmitted.Inc()) without threading a registry through
constructors. The exposition handler is mounted on the API listener at
/metrics.

The Timer helper standardizes duration observations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DiscoveryDuration)
*/
package metrics

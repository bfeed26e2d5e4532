/*
Package metrics provides Prometheus instrumentation for the membership,
coordinator, and dispatcher subsystems.

Metrics are package-level prometheus.Collector values registered at init
time, plus a small Timer helper used with defer at the top of an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "put")

Handler exposes the standard /metrics HTTP endpoint via promhttp, served by
every node's local metrics listener (sdfsd serve --metrics-addr).
*/
package metrics

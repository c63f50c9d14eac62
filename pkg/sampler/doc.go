/*
Package sampler collects per-container resource metrics.

One poller per monitored container reads the engine stats endpoint at a
fixed cadence (default five seconds) and converts cumulative counters into
rates: CPU percent from CPU-delta over system-delta scaled by online CPUs,
network and block throughput from byte-counter deltas over elapsed time.
Rates need two snapshots, so the first sample after attach reports only the
memory gauges and is marked suppressed.

Each sample updates the container's descriptor, is published on the metrics
topic, and lands in a bounded ring (120 samples per container) backing the
dashboard's stats queries.
*/
package sampler

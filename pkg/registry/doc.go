/*
Package registry tracks discovered containers and drives their monitors.

A discovery pass runs at startup and every 15 seconds. Containers carrying
the sre-sentinel.monitor=true label are upserted; each newly observed
container gets its own cancellable context under which the registered
MonitorStarters (log ingester, metrics sampler) launch their workers.
Containers absent from a pass accumulate a miss counter and are removed only
after exceeding two consecutive misses, so a restart flap does not tear down
and recreate the monitoring pipeline.

Writes are serialized by the discovery loop; every reader receives a copy of
the descriptor, never a live pointer. Each state change, sample update,
discovery, and removal publishes a container_update event.
*/
package registry

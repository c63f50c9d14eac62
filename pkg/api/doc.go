/*
Package api serves the external HTTP and WebSocket interface.

The dashboard is a pure subscriber: three snapshot endpoints bootstrap its
state and one WebSocket endpoint streams everything that happens afterwards.

	GET /health          liveness
	GET /containers      current descriptors with last resource sample
	GET /incidents       all incidents, ordered by detection time
	GET /incidents/{id}  one incident
	GET /stats/{id}      recent resource-sample ring for one container
	GET /metrics         Prometheus exposition
	WS  /ws              live event subscription

On connect, /ws first sends a bootstrap envelope carrying the current
descriptors and incidents, then streams JSON envelopes shaped
{type: <topic>, ...payload} for every bus topic. Each client gets a bounded
bus subscription; a client that cannot keep up loses its oldest events
rather than slowing the pipeline. No authentication is applied.
*/
package api

/*
Package bus provides the in-process pub/sub fabric carrying every Sentinel
observability topic.

The bus multiplexes six named topics — log, metrics, container_update,
incident, incident_update, action_outcome — to any number of subscribers,
each with its own bounded queue:

	┌───────────────────── EVENT BUS ──────────────────────────┐
	│                                                           │
	│  Publisher ──► per-topic sequence ──► optional journal    │
	│                        │                  (bbolt)         │
	│                        ▼                                  │
	│              ┌─ subscriber queue (cap N) ─ reader         │
	│   fan-out ───┼─ subscriber queue (cap N) ─ reader         │
	│              └─ subscriber queue (cap N) ─ reader         │
	│                                                           │
	└───────────────────────────────────────────────────────────┘

Publish never blocks the producer. When a subscriber queue is at capacity the
oldest queued event is discarded and that subscription's drop counter
incremented, so a slow dashboard reader observes a strict suffix of the
stream and can detect the gap. Per-topic sequence numbers are strictly
increasing for any single subscriber; ordering across topics is not
guaranteed.

When EVENT_BUS_PATH is configured, events on the journaled topics are written
synchronously to a bolt bucket per topic before fan-out. Journaled topics are
never dropped, which is what makes a durable subscriber durable.
*/
package bus

/*
Package incident holds the incident store, state machine, and driver.

The incident is Sentinel's central entity: a stateful record of one fault
from detection through resolution. The store owns every incident for process
lifetime and admits mutations only through its state machine:

	      accept verdict          plan ready            actions begun
	[NEW] ─────────────→ [ANALYZING] ─────────→ [REMEDIATING] ─────┐
	                          │                       │            │
	                          │ plan empty            │ all ok     │
	                          │ or refused            ▼            │
	                          │                   [VERIFYING]      │
	                          ▼                       │            │
	                     [UNRESOLVED]                 │ healthy    │
	                                                  ▼            │
	                                              [RESOLVED]       │
	                                                               │
	                                         any step fatal error  │
	                                              ▼                │
	                                         [FAILED] ←────────────┘

Gating happens at acceptance: exactly one open incident per container,
repeat verdicts inside the 60-second debounce window are suppressed, and
window sequence numbers must advance so stale verdicts are rejected.

Each accepted incident is driven by a single goroutine owned by the Manager,
so per-incident transitions are totally ordered. Transitions out of terminal
states are rejected by the store. Every creation publishes on the incident
topic and every transition on incident_update; action outcomes go out on
action_outcome as they are recorded.
*/
package incident

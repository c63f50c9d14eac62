/*
Package types defines the shared data model for Sentinel.

All structures exchanged between subsystems live here: container descriptors
maintained by discovery, log windows emitted by the ingester, resource samples
from the metrics sampler, anomaly verdicts from the classifier gate, incidents
with their state machine, remediation plans, and action outcomes.

The package also carries the error taxonomy (ErrorKind) used by every
component to classify failures as transient (retried locally) or structural
(never retried), and the SentinelError wrapper that lets callers recover the
kind through errors.As.

Types in this package are plain data with JSON tags; behavior belongs to the
owning subsystem. The one exception is Incident.Clone, which exists so the
incident store can hand consistent snapshots to concurrent readers.
*/
package types

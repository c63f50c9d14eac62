/*
Package engine wraps the container engine API behind a narrow interface.

Sentinel needs five things from the engine: label-filtered listings for
discovery, inspection for status and environment, a following log stream,
one-shot stats snapshots, and name resolution after remediation recreates a
container. The Engine interface captures exactly that surface so the rest of
the pipeline can run against a fake in tests.

DockerEngine is the production implementation, built on the Docker daemon
API. Log streams from non-TTY containers arrive in the engine's multiplexed
framing; Demux unwraps them into a plain line-oriented reader using the
engine's own stdcopy demultiplexer, with a context-aware reader so a stalled
stream can be abandoned cooperatively.

All engine failures are wrapped as engine_unavailable so callers can apply
the shared backoff policy without inspecting transport errors.
*/
package engine

/*
Package ingest follows container log streams and batches them into windows.

One follower goroutine runs per monitored container. It attaches to the
engine's log endpoint with follow semantics from the moment of attachment
(no backfill), demultiplexes the stdout/stderr framing, and does two things
with every line:

  - publishes it individually on the log topic, with a severity inferred
    from simple pattern heuristics and secrets redacted, and
  - appends it to the current window, which is emitted to the anomaly gate
    when it reaches the configured size or when the flush interval elapses
    with at least one buffered line.

Lost streams (engine disconnect, container restart) are re-attached with
exponential backoff starting at one second and capped at thirty. Buffered
lines survive the reconnect: a partial window is emitted by the flush ticker
once the interval elapses after re-attach. On cancellation the follower
drains its partial window and exits.
*/
package ingest

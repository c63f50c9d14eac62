/*
Package remedy executes remediation plans through the tool gateway.

The gateway speaks the Model Context Protocol over streamable HTTP: an
initialize handshake establishes a session token, tools/list enumerates the
remediation catalog with JSON-schema parameter specs, and tools/call invokes
a tool and returns a content payload with an isError flag. The Executor owns
this session exclusively and serializes all plan execution through it, since
the gateway's session model is not documented as concurrency-safe.

Plan execution walks actions in priority order (lower first, plan order on
ties). Each action is resolved against the discovered catalog
(tool_not_found), validated against the tool's compiled schema
(schema_violation), then invoked with a per-call timeout — 30 seconds
normally, 120 for tools that destroy and recreate containers. Transient
transport failures retry twice more at 1s and 3s; session expiry triggers
exactly one re-handshake before the call is re-issued. A fatal failure on a
priority <= 2 action aborts the remainder of the plan; anything softer is
recorded and left for the verifier to judge.

Structural failures (tool_not_found, schema_violation) are never retried.
*/
package remedy

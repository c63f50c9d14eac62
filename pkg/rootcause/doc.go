/*
Package rootcause turns a confirmed anomaly into a remediation plan.

For each incident the engine assembles an enriched context: the triggering
verdict and its log window, up to 500 recent lines from the affected
container, a summary of every monitored container, and the container's
environment with secrets redacted. The deep analyzer gets 45 seconds to
return a diagnosis and recommended actions.

Recommended actions referencing tools absent from the gateway's discovered
catalog are dropped with a warning, so the resulting plan may be empty — the
driver then parks the incident as unresolved instead of remediating.
Analyzer transport failures likewise surface to the driver rather than
producing a guessed plan.
*/
package rootcause

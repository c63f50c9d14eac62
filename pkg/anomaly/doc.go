/*
Package anomaly gates log windows into the incident pipeline.

Each window emitted by the ingester is classified by the fast inference
service with a hard three-second timeout. The gate forwards a verdict to the
incident store only when the classifier flags an anomaly with confidence at
or above 0.7; everything else — normal windows, low-confidence flags,
classifier timeouts and malformed responses — is dropped, because the next
window arrives within seconds anyway.

Classification runs on a small worker pool so a slow classifier never backs
up into the ingesters: when the queue saturates, windows are skipped and
counted rather than buffered without bound.
*/
package anomaly

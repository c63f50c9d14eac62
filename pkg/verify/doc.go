/*
Package verify decides whether remediation actually worked.

After a plan executes, the verifier polls the target container every five
seconds for up to a minute. Recovery requires the container to report
running — and healthy, when it declares a healthcheck — for two consecutive
samples, so a restart flap right after remediation does not count. If the
original container id disappeared (remediation recreated it), the verifier
re-resolves the target by name once and keeps probing.

A deadline without convergence yields a verifier_timeout, which fails the
incident.
*/
package verify

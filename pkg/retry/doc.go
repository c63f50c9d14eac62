/*
Package retry is the single retry combinator shared by every external
call-site.

Do runs a function with exponential backoff parameterized by attempts, base
delay, multiplier, cap, and jitter; wrapping an error with Stop ends the
loop immediately for structural failures. Backoff carries the same policy
for long-lived streams that re-attach instead of retrying a single call.
*/
package retry

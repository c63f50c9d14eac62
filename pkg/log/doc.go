/*
Package log provides structured logging for Sentinel using zerolog.

The process logger is configured exactly once via Setup; until then it is a
no-op, so packages and tests can log unconditionally. An unknown level name
fails Setup instead of silently falling back, matching the daemon's policy
that bad configuration stops startup.

Subsystems never touch the root logger directly. They derive child loggers
carrying the correlation fields Sentinel's pipeline is debugged by:

	logger := log.WithContainer(c.ID, c.Name)
	logger.Warn().Err(err).Msg("log stream lost, re-attaching")

WithComponent tags a subsystem, WithContainer tags per-container workers
(with the engine id shortened to 12 characters), and WithIncident tags
incident drivers so one incident's lifecycle can be grepped end to end.
*/
package log

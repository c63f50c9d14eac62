package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// root is the process-wide logger. It stays a no-op until Setup runs, so
// library code (and tests) can log unconditionally without configuration.
var root = zerolog.Nop()

// Options configures the process logger once at startup
type Options struct {
	// Level names a zerolog level (debug, info, warn, error, ...).
	// Empty means info.
	Level string
	// JSON emits machine-readable output; the default is a console
	// writer for interactive use
	JSON bool
	// Out overrides the destination, stdout by default
	Out io.Writer
}

// Setup builds the root logger. An unknown level name is a configuration
// error, not a silent fallback.
func Setup(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("unknown log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	root = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// WithComponent derives a child logger tagged with the subsystem name
func WithComponent(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// WithContainer derives a child logger carrying the container correlation
// fields every per-container worker logs with
func WithContainer(id, name string) zerolog.Logger {
	return root.With().Str("container_id", ShortID(id)).Str("container_name", name).Logger()
}

// WithIncident derives a child logger tagged with the incident id
func WithIncident(incidentID string) zerolog.Logger {
	return root.With().Str("incident_id", incidentID).Logger()
}

// ShortID truncates an engine-assigned container id for log readability
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

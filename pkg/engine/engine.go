package engine

import (
	"context"
	"io"
	"time"
)

// ContainerInfo is one entry from a discovery listing
type ContainerInfo struct {
	ID      string
	Name    string
	Labels  map[string]string
	State   string
	Created time.Time
}

// ContainerDetail is the inspected state of a single container
type ContainerDetail struct {
	ID           string
	Name         string
	Status       string
	Health       string // "", "healthy", "unhealthy", "starting"
	RestartCount int
	Env          []string
	Labels       map[string]string
	StartedAt    time.Time
}

// StatsSnapshot carries the cumulative counters needed to derive rates.
// Two snapshots are required for CPU, network and block rates.
type StatsSnapshot struct {
	ReadAt        time.Time
	CPUTotal      uint64
	CPUSystem     uint64
	PreCPUTotal   uint64
	PreCPUSystem  uint64
	OnlineCPUs    uint32
	MemoryUsage   uint64
	MemoryLimit   uint64
	NetRxBytes    uint64
	NetTxBytes    uint64
	BlockReadByte uint64
	BlockWriteByte uint64
}

// LogStream is a raw engine log stream. Multiplexed streams must be
// demultiplexed with Demux before line scanning.
type LogStream struct {
	Reader io.ReadCloser
	// TTY streams are plain text; non-TTY streams use the engine's
	// stdout/stderr framing
	TTY bool
}

// Engine abstracts the container engine so the pipeline can run against a
// fake in tests. Implementations must be safe for concurrent use.
type Engine interface {
	// ListMonitored returns all containers carrying the monitor opt-in label
	ListMonitored(ctx context.Context) ([]ContainerInfo, error)

	// Inspect returns the current detail of one container
	Inspect(ctx context.Context, id string) (*ContainerDetail, error)

	// FollowLogs attaches to the container's stdout+stderr from the given
	// time onward. The returned stream stays open until cancelled or the
	// engine drops it.
	FollowLogs(ctx context.Context, id string, since time.Time) (*LogStream, error)

	// TailLogs returns up to n recent log lines without following
	TailLogs(ctx context.Context, id string, n int) ([]string, error)

	// Stats returns a one-shot stats snapshot
	Stats(ctx context.Context, id string) (*StatsSnapshot, error)

	// ResolveName maps a container name to its current id. Used after
	// remediation actions that recreate a container under the same name.
	ResolveName(ctx context.Context, name string) (string, error)

	// Ping verifies engine connectivity
	Ping(ctx context.Context) error
}

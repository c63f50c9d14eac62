package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/sre-sentinel/sentinel/pkg/types"
)

// DockerEngine implements Engine against the Docker daemon API
type DockerEngine struct {
	cli *client.Client
}

// NewDocker connects to the Docker daemon using the standard environment
// (DOCKER_HOST et al) with API version negotiation.
func NewDocker() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.connect", err)
	}
	return &DockerEngine{cli: cli}, nil
}

// Close releases the underlying client
func (d *DockerEngine) Close() error {
	return d.cli.Close()
}

// Ping verifies engine connectivity
func (d *DockerEngine) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return types.NewError(types.ErrEngineUnavailable, "engine.ping", err)
	}
	return nil
}

// ListMonitored returns all containers carrying the monitor opt-in label
func (d *DockerEngine) ListMonitored(ctx context.Context) ([]ContainerInfo, error) {
	args := filters.NewArgs(filters.Arg("label", types.LabelMonitor+"=true"))
	list, err := d.cli.ContainerList(ctx, dockertypes.ContainerListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.list", err)
	}

	out := make([]ContainerInfo, 0, len(list))
	for _, c := range list {
		out = append(out, ContainerInfo{
			ID:      c.ID,
			Name:    containerName(c.Names),
			Labels:  c.Labels,
			State:   c.State,
			Created: time.Unix(c.Created, 0),
		})
	}
	return out, nil
}

// Inspect returns the current detail of one container
func (d *DockerEngine) Inspect(ctx context.Context, id string) (*ContainerDetail, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.inspect", err)
	}

	detail := &ContainerDetail{
		ID:           info.ID,
		Name:         strings.TrimPrefix(info.Name, "/"),
		RestartCount: info.RestartCount,
	}
	if info.Config != nil {
		detail.Env = info.Config.Env
		detail.Labels = info.Config.Labels
	}
	if info.State != nil {
		detail.Status = info.State.Status
		if info.State.Health != nil {
			detail.Health = info.State.Health.Status
		}
		if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			detail.StartedAt = t
		}
	}
	return detail, nil
}

// FollowLogs attaches to the container's stdout+stderr from since onward
func (d *DockerEngine) FollowLogs(ctx context.Context, id string, since time.Time) (*LogStream, error) {
	rc, err := d.cli.ContainerLogs(ctx, id, dockertypes.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Since:      strconv.FormatInt(since.Unix(), 10),
	})
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.logs", err)
	}

	tty := false
	if info, err := d.cli.ContainerInspect(ctx, id); err == nil && info.Config != nil {
		tty = info.Config.Tty
	}
	return &LogStream{Reader: rc, TTY: tty}, nil
}

// TailLogs returns up to n recent log lines without following
func (d *DockerEngine) TailLogs(ctx context.Context, id string, n int) ([]string, error) {
	rc, err := d.cli.ContainerLogs(ctx, id, dockertypes.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(n),
	})
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.tail", err)
	}
	defer rc.Close()

	tty := false
	if info, err := d.cli.ContainerInspect(ctx, id); err == nil && info.Config != nil {
		tty = info.Config.Tty
	}

	stream := &LogStream{Reader: rc, TTY: tty}
	demuxed := Demux(ctx, stream)
	defer demuxed.Close()

	var lines []string
	scanner := bufio.NewScanner(demuxed)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, nil
}

// Stats returns a one-shot stats snapshot
func (d *DockerEngine) Stats(ctx context.Context, id string) (*StatsSnapshot, error) {
	resp, err := d.cli.ContainerStats(ctx, id, false)
	if err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.stats", err)
	}
	defer resp.Body.Close()

	var stats dockertypes.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, types.NewError(types.ErrEngineUnavailable, "engine.stats.decode", err)
	}

	snap := &StatsSnapshot{
		ReadAt:       stats.Read,
		CPUTotal:     stats.CPUStats.CPUUsage.TotalUsage,
		CPUSystem:    stats.CPUStats.SystemUsage,
		PreCPUTotal:  stats.PreCPUStats.CPUUsage.TotalUsage,
		PreCPUSystem: stats.PreCPUStats.SystemUsage,
		OnlineCPUs:   stats.CPUStats.OnlineCPUs,
		MemoryUsage:  stats.MemoryStats.Usage,
		MemoryLimit:  stats.MemoryStats.Limit,
	}
	for _, nw := range stats.Networks {
		snap.NetRxBytes += nw.RxBytes
		snap.NetTxBytes += nw.TxBytes
	}
	for _, entry := range stats.BlkioStats.IoServiceBytesRecursive {
		switch strings.ToLower(entry.Op) {
		case "read":
			snap.BlockReadByte += entry.Value
		case "write":
			snap.BlockWriteByte += entry.Value
		}
	}
	return snap, nil
}

// ResolveName maps a container name to its current id
func (d *DockerEngine) ResolveName(ctx context.Context, name string) (string, error) {
	args := filters.NewArgs(filters.Arg("name", name))
	list, err := d.cli.ContainerList(ctx, dockertypes.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return "", types.NewError(types.ErrEngineUnavailable, "engine.resolve", err)
	}
	for _, c := range list {
		if containerName(c.Names) == name {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("container %q not found", name)
}

// containerName strips the engine's leading slash from the primary name
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	// DiscoveryInterval is the period between discovery passes
	DiscoveryInterval = 15 * time.Second
	// graceMisses is how many consecutive passes a container may be absent
	// before its descriptor is removed. Two passes at the discovery
	// interval tolerate restart flaps of about 30 seconds.
	graceMisses = 2
)

// MonitorStarter launches the per-container workers (log ingester, metrics
// sampler). Start must return promptly; long-running work happens on
// goroutines bound to ctx, which is cancelled when the descriptor is removed.
type MonitorStarter interface {
	Start(ctx context.Context, c *types.Container)
}

type entry struct {
	container *types.Container
	misses    int
	cancel    context.CancelFunc
}

// Registry tracks discovered containers and runs the discovery loop. Writes
// are serialized by the loop; readers get copies.
type Registry struct {
	eng      engine.Engine
	bus      *bus.Bus
	starters []MonitorStarter
	logger   zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Registry. Call RegisterStarters before Start.
func New(eng engine.Engine, b *bus.Bus) *Registry {
	return &Registry{
		eng:     eng,
		bus:     b,
		logger:  log.WithComponent("registry"),
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// RegisterStarters sets the hooks invoked once for each newly observed
// container. Must be called before Start; the sampler and registry
// reference each other, which rules out constructor injection.
func (r *Registry) RegisterStarters(starters ...MonitorStarter) {
	r.starters = starters
}

// Start runs an immediate discovery pass and then the periodic loop
func (r *Registry) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts the loop and cancels every per-container monitor
func (r *Registry) Stop() {
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.cancel()
	}
}

func (r *Registry) run(ctx context.Context) {
	defer close(r.doneCh)

	r.logger.Info().Msg("discovery started")
	r.discover(ctx)

	ticker := time.NewTicker(DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.discover(ctx)
		case <-r.stopCh:
			r.logger.Info().Msg("discovery stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// discover performs one pass: upsert every labeled container, age out the
// rest.
func (r *Registry) discover(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DiscoveryDuration)
		metrics.DiscoveryCyclesTotal.Inc()
	}()

	listed, err := r.eng.ListMonitored(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("discovery pass failed")
		return
	}

	seen := make(map[string]struct{}, len(listed))
	for _, info := range listed {
		if info.Labels[types.LabelMonitor] != "true" {
			continue
		}
		seen[info.ID] = struct{}{}
		r.upsert(ctx, info)
	}

	r.mu.Lock()
	var removed []*types.Container
	for id, e := range r.entries {
		if _, ok := seen[id]; ok {
			e.misses = 0
			continue
		}
		e.misses++
		if e.misses > graceMisses {
			e.cancel()
			removed = append(removed, e.container)
			delete(r.entries, id)
		}
	}
	count := len(r.entries)
	r.mu.Unlock()

	metrics.ContainersMonitored.Set(float64(count))

	for _, c := range removed {
		r.logger.Info().Str("container", c.Name).Msg("container removed from monitoring")
		gone := *c
		gone.Status = types.ContainerStatusUnknown
		gone.Monitored = false
		r.bus.Publish(bus.TopicContainerUpdate, &gone)
	}
}

func (r *Registry) upsert(ctx context.Context, info engine.ContainerInfo) {
	detail, err := r.eng.Inspect(ctx, info.ID)
	if err != nil {
		r.logger.Warn().Err(err).Str("container", info.Name).Msg("inspect failed")
		return
	}

	service := info.Labels[types.LabelService]
	if service == "" {
		service = info.Name
	}

	fresh := &types.Container{
		ID:           info.ID,
		Name:         detail.Name,
		Service:      service,
		Monitored:    true,
		Status:       mapStatus(detail.Status),
		Health:       mapHealth(detail.Health),
		RestartCount: detail.RestartCount,
		CreatedAt:    info.Created,
	}

	r.mu.Lock()
	existing, ok := r.entries[info.ID]
	if !ok {
		monitorCtx, cancel := context.WithCancel(ctx)
		r.entries[info.ID] = &entry{container: fresh, cancel: cancel}
		r.mu.Unlock()

		r.logger.Info().
			Str("container", fresh.Name).
			Str("service", service).
			Msg("container discovered")
		r.bus.Publish(bus.TopicContainerUpdate, cloneContainer(fresh))

		started := *fresh
		for _, s := range r.starters {
			s.Start(monitorCtx, &started)
		}
		return
	}

	changed := existing.container.Status != fresh.Status ||
		existing.container.Health != fresh.Health ||
		existing.container.RestartCount != fresh.RestartCount
	fresh.LastSample = existing.container.LastSample
	existing.container = fresh
	existing.misses = 0
	r.mu.Unlock()

	if changed {
		r.bus.Publish(bus.TopicContainerUpdate, cloneContainer(fresh))
	}
}

// UpdateSample records the latest resource sample for a container and
// publishes the descriptor change
func (r *Registry) UpdateSample(id string, sample *types.ResourceSample) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.container.LastSample = sample
	snapshot := cloneContainer(e.container)
	r.mu.Unlock()

	r.bus.Publish(bus.TopicContainerUpdate, snapshot)
}

// Get returns a copy of one descriptor
func (r *Registry) Get(id string) (*types.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return cloneContainer(e.container), true
}

// Snapshot returns copies of all descriptors, ordered by name
func (r *Registry) Snapshot() []*types.Container {
	r.mu.RLock()
	out := make([]*types.Container, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneContainer(e.container))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func cloneContainer(c *types.Container) *types.Container {
	cp := *c
	if c.LastSample != nil {
		s := *c.LastSample
		cp.LastSample = &s
	}
	return &cp
}

func mapStatus(s string) types.ContainerStatus {
	switch s {
	case "running":
		return types.ContainerStatusRunning
	case "created", "restarting":
		return types.ContainerStatusStarting
	case "exited", "dead", "removing":
		return types.ContainerStatusExited
	default:
		return types.ContainerStatusUnknown
	}
}

func mapHealth(h string) types.HealthState {
	switch h {
	case "healthy":
		return types.HealthStateHealthy
	case "unhealthy":
		return types.HealthStateUnhealthy
	case "starting":
		return types.HealthStateStarting
	default:
		return types.HealthStateNone
	}
}

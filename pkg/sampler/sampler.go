package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// RingSize bounds how many samples are retained per container for snapshot
// queries
const RingSize = 120

// DescriptorUpdater receives each new sample for descriptor maintenance.
// Satisfied by the container registry.
type DescriptorUpdater interface {
	UpdateSample(id string, sample *types.ResourceSample)
}

// Sampler polls the engine stats endpoint for each monitored container at a
// fixed cadence and converts cumulative counters into rates.
type Sampler struct {
	eng      engine.Engine
	bus      *bus.Bus
	updater  DescriptorUpdater
	interval time.Duration

	mu    sync.RWMutex
	rings map[string]*ring
}

// New creates a Sampler polling at the given interval
func New(eng engine.Engine, b *bus.Bus, updater DescriptorUpdater, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{
		eng:      eng,
		bus:      b,
		updater:  updater,
		interval: interval,
		rings:    make(map[string]*ring),
	}
}

// Start launches the poll loop for one container. Implements
// registry.MonitorStarter.
func (s *Sampler) Start(ctx context.Context, c *types.Container) {
	go s.run(ctx, *c)
}

func (s *Sampler) run(ctx context.Context, c types.Container) {
	logger := log.WithContainer(c.ID, c.Name).With().Str("component", "sampler").Logger()
	logger.Debug().Msg("metrics sampler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.forget(c.ID)

	var prev *engine.StatsSnapshot

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("metrics sampler stopped")
			return
		case <-ticker.C:
			snap, err := s.eng.Stats(ctx, c.ID)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug().Err(err).Msg("stats poll failed")
				}
				continue
			}

			sample := Convert(c.ID, snap, prev)
			prev = snap

			s.record(c.ID, sample)
			s.updater.UpdateSample(c.ID, sample)
			s.bus.Publish(bus.TopicMetrics, sample)
		}
	}
}

// Convert derives a resource sample from a stats snapshot. Rates need two
// snapshots; with no previous snapshot they are suppressed and only the
// memory gauges are reported.
func Convert(id string, cur, prev *engine.StatsSnapshot) *types.ResourceSample {
	sample := &types.ResourceSample{
		ContainerID: id,
		Timestamp:   cur.ReadAt,
		MemoryUsage: cur.MemoryUsage,
		MemoryLimit: cur.MemoryLimit,
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	if cur.MemoryLimit > 0 {
		sample.MemoryPercent = float64(cur.MemoryUsage) / float64(cur.MemoryLimit) * 100.0
	}

	if prev == nil {
		sample.RatesSuppressed = true
		return sample
	}

	cpuDelta := float64(cur.CPUTotal) - float64(prev.CPUTotal)
	sysDelta := float64(cur.CPUSystem) - float64(prev.CPUSystem)
	if cpuDelta > 0 && sysDelta > 0 {
		cpus := float64(cur.OnlineCPUs)
		if cpus == 0 {
			cpus = 1
		}
		sample.CPUPercent = cpuDelta / sysDelta * cpus * 100.0
	}

	elapsed := cur.ReadAt.Sub(prev.ReadAt).Seconds()
	if elapsed > 0 {
		sample.NetRxBytesSec = counterRate(cur.NetRxBytes, prev.NetRxBytes, elapsed)
		sample.NetTxBytesSec = counterRate(cur.NetTxBytes, prev.NetTxBytes, elapsed)
		sample.BlockReadSec = counterRate(cur.BlockReadByte, prev.BlockReadByte, elapsed)
		sample.BlockWriteSec = counterRate(cur.BlockWriteByte, prev.BlockWriteByte, elapsed)
	}
	return sample
}

// counterRate converts a cumulative byte counter delta into bytes per second,
// treating counter resets (container restart) as zero
func counterRate(cur, prev uint64, elapsed float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed
}

func (s *Sampler) record(id string, sample *types.ResourceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[id]
	if !ok {
		r = newRing(RingSize)
		s.rings[id] = r
	}
	r.push(*sample)
}

func (s *Sampler) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rings, id)
}

// Recent returns the retained samples for a container, oldest first
func (s *Sampler) Recent(id string) []types.ResourceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[id]
	if !ok {
		return nil
	}
	return r.items()
}

// ring is a fixed-capacity sample buffer; the oldest entry is overwritten
// once full
type ring struct {
	buf   []types.ResourceSample
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]types.ResourceSample, capacity)}
}

func (r *ring) push(s types.ResourceSample) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) items() []types.ResourceSample {
	out := make([]types.ResourceSample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

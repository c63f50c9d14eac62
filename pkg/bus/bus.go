package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
)

// Topic names carried by the bus
const (
	TopicLog             = "log"
	TopicMetrics         = "metrics"
	TopicContainerUpdate = "container_update"
	TopicIncident        = "incident"
	TopicIncidentUpdate  = "incident_update"
	TopicActionOutcome   = "action_outcome"
)

// AllTopics lists every topic in delivery order for subscribers that want
// the full stream
var AllTopics = []string{
	TopicLog,
	TopicMetrics,
	TopicContainerUpdate,
	TopicIncident,
	TopicIncidentUpdate,
	TopicActionOutcome,
}

// Event is the envelope delivered to subscribers. Seq increases strictly
// per topic; ordering across topics is not guaranteed.
type Event struct {
	ID        string      `json:"id"`
	Topic     string      `json:"topic"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Bus is a topic multiplexer with bounded per-subscriber queues. Publish
// never blocks: when a subscriber queue is full the oldest queued event is
// discarded and the subscriber's drop counter incremented. An optional
// journal receives selected topics durably before fan-out.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	seqs    map[string]*uint64
	journal *Journal
	closed  bool
}

// Subscription is one bounded delivery queue. C carries events for the
// subscribed topics; Close deregisters and releases the queue.
type Subscription struct {
	C      chan Event
	topics map[string]struct{}
	bus    *Bus
	drops  atomic.Uint64
	once   sync.Once
}

// New creates a Bus. journal may be nil when durable fan-out is not configured.
func New(journal *Journal) *Bus {
	b := &Bus{
		subs:    make(map[*Subscription]struct{}),
		seqs:    make(map[string]*uint64),
		journal: journal,
	}
	for _, t := range AllTopics {
		b.seqs[t] = new(uint64)
	}
	return b
}

// Subscribe registers a queue of the given capacity for the listed topics.
// An empty topic list subscribes to everything.
func (b *Bus) Subscribe(topics []string, capacity int) *Subscription {
	if capacity < 1 {
		capacity = 1
	}
	if len(topics) == 0 {
		topics = AllTopics
	}
	sub := &Subscription{
		C:      make(chan Event, capacity),
		topics: make(map[string]struct{}, len(topics)),
		bus:    b,
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close deregisters the subscription. Pending events may still be drained
// from C afterwards.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
}

// Drops returns the number of events discarded from this subscription's queue
func (s *Subscription) Drops() uint64 {
	return s.drops.Load()
}

// Publish enqueues payload on topic for every subscriber. It never blocks and
// never fails; slow subscribers lose their oldest queued events. The
// exclusive lock serializes concurrent publishers so delivered sequence
// numbers stay strictly increasing per topic.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	seqPtr, ok := b.seqs[topic]
	if !ok {
		logger := log.WithComponent("bus")
		logger.Warn().Str("topic", topic).Msg("publish on unknown topic")
		return
	}

	ev := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Seq:       atomic.AddUint64(seqPtr, 1),
		Timestamp: time.Now(),
		Payload:   payload,
	}

	if b.journal != nil {
		if err := b.journal.Append(ev); err != nil {
			logger := log.WithComponent("bus")
			logger.Error().Err(err).Str("topic", topic).Msg("journal append failed")
		}
	}

	metrics.BusEventsPublished.WithLabelValues(topic).Inc()

	for sub := range b.subs {
		if _, want := sub.topics[topic]; !want {
			continue
		}
		sub.offer(ev)
	}
}

// offer enqueues ev, discarding the oldest queued event when the queue is at
// capacity. The bus is the only writer to the channel, so at most one
// discard round is needed per offer.
func (s *Subscription) offer(ev Event) {
	select {
	case s.C <- ev:
		return
	default:
	}

	// queue full: drop the oldest, then retry once. If the reader raced us
	// and drained the queue, the retry simply succeeds.
	select {
	case <-s.C:
		s.drops.Add(1)
		metrics.BusEventsDropped.WithLabelValues(ev.Topic).Inc()
	default:
	}

	select {
	case s.C <- ev:
	default:
		s.drops.Add(1)
		metrics.BusEventsDropped.WithLabelValues(ev.Topic).Inc()
	}
}

// Close shuts the bus down. Further publishes are ignored; subscriber
// channels are left open for draining and the journal is closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.journal != nil {
		return b.journal.Close()
	}
	return nil
}

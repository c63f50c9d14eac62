package incident

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// DebounceWindow suppresses repeat verdicts for a container after an
// incident's detection
const DebounceWindow = 60 * time.Second

// allowedTransitions encodes the incident state machine. Terminal states
// have no outgoing edges.
var allowedTransitions = map[types.IncidentState][]types.IncidentState{
	types.IncidentStateNew:         {types.IncidentStateAnalyzing},
	types.IncidentStateAnalyzing:   {types.IncidentStateRemediating, types.IncidentStateUnresolved},
	types.IncidentStateRemediating: {types.IncidentStateVerifying, types.IncidentStateFailed},
	types.IncidentStateVerifying:   {types.IncidentStateResolved, types.IncidentStateFailed},
}

// Store holds every incident for process lifetime. The index is guarded by a
// mutex for insert and lookup; each incident is mutated only through
// Transition and AppendOutcome, which serialize per incident.
type Store struct {
	bus *bus.Bus

	mu        sync.Mutex
	nextID    uint64
	incidents map[string]*types.Incident
	order     []string
	byCont    map[string]string // container id -> open incident id
	lastOpen  map[string]time.Time
	lastSeq   map[string]uint64
}

// RejectReason explains why a verdict did not open an incident
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectOpenIncident RejectReason = "open_incident"
	RejectDebounced    RejectReason = "debounced"
	RejectStaleWindow  RejectReason = "stale_window"
)

// NewStore creates an empty incident store
func NewStore(b *bus.Bus) *Store {
	return &Store{
		bus:       b,
		incidents: make(map[string]*types.Incident),
		byCont:    make(map[string]string),
		lastOpen:  make(map[string]time.Time),
		lastSeq:   make(map[string]uint64),
	}
}

// Accept applies the gating rules and opens a new incident when they pass.
// Exactly one incident may be open per container, repeat verdicts inside the
// debounce window are suppressed, and window sequence numbers must advance.
func (s *Store) Accept(c *types.Container, verdict types.AnomalyVerdict) (*types.Incident, RejectReason) {
	s.mu.Lock()

	if verdict.WindowSeq <= s.lastSeq[c.ID] {
		s.mu.Unlock()
		return nil, RejectStaleWindow
	}
	if openID, ok := s.byCont[c.ID]; ok {
		s.mu.Unlock()
		logger := log.WithComponent("incidents")
		logger.Debug().
			Str("incident_id", openID).
			Str("container", c.Name).
			Msg("verdict suppressed: incident already open")
		return nil, RejectOpenIncident
	}
	if last, ok := s.lastOpen[c.ID]; ok && verdict.DetectedAt.Sub(last) < DebounceWindow {
		s.mu.Unlock()
		metrics.VerdictsSuppressed.Inc()
		return nil, RejectDebounced
	}

	s.nextID++
	inc := &types.Incident{
		ID:          fmt.Sprintf("INC-%d", s.nextID),
		ContainerID: c.ID,
		Service:     c.Service,
		DetectedAt:  verdict.DetectedAt,
		State:       types.IncidentStateNew,
		Verdict:     verdict,
		UpdatedAt:   verdict.DetectedAt,
	}
	s.incidents[inc.ID] = inc
	s.order = append(s.order, inc.ID)
	s.byCont[c.ID] = inc.ID
	s.lastOpen[c.ID] = verdict.DetectedAt
	s.lastSeq[c.ID] = verdict.WindowSeq
	snapshot := inc.Clone()
	s.updateStateGaugeLocked()
	s.mu.Unlock()

	metrics.IncidentsTotal.WithLabelValues(c.Service).Inc()
	openLogger := log.WithIncident(inc.ID)
	openLogger.Info().
		Str("container", c.Name).
		Str("service", c.Service).
		Str("severity", string(verdict.Severity)).
		Float64("confidence", verdict.Confidence).
		Msg("incident opened")

	s.bus.Publish(bus.TopicIncident, snapshot)
	return snapshot, RejectNone
}

// Transition moves an incident to a new state, applying mutate (which may be
// nil) under the store lock before publishing. Transitions out of terminal
// states and edges missing from the state machine are rejected.
func (s *Store) Transition(id string, to types.IncidentState, mutate func(*types.Incident)) error {
	s.mu.Lock()
	inc, ok := s.incidents[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown incident %s", id)
	}

	if inc.State.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("incident %s is terminal (%s)", id, inc.State)
	}
	if !transitionAllowed(inc.State, to) {
		s.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s for incident %s", inc.State, to, id)
	}

	inc.State = to
	inc.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(inc)
	}
	if to == types.IncidentStateResolved && inc.ResolvedAt == nil {
		now := inc.UpdatedAt
		inc.ResolvedAt = &now
	}
	if to.Terminal() {
		delete(s.byCont, inc.ContainerID)
	}
	snapshot := inc.Clone()
	s.updateStateGaugeLocked()
	s.mu.Unlock()

	transitionLogger := log.WithIncident(id)
	transitionLogger.Info().
		Str("state", string(to)).
		Msg("incident transition")
	s.bus.Publish(bus.TopicIncidentUpdate, snapshot)
	return nil
}

// AppendOutcome records one action outcome on a non-terminal incident and
// publishes it
func (s *Store) AppendOutcome(id string, outcome types.ActionOutcome) error {
	s.mu.Lock()
	inc, ok := s.incidents[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown incident %s", id)
	}
	if inc.State.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("incident %s is terminal (%s)", id, inc.State)
	}
	outcome.IncidentID = id
	inc.Outcomes = append(inc.Outcomes, outcome)
	inc.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.bus.Publish(bus.TopicActionOutcome, outcome)
	return nil
}

// Get returns a copy of one incident
func (s *Store) Get(id string) (*types.Incident, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false
	}
	return inc.Clone(), true
}

// List returns copies of all incidents ordered by detection time
func (s *Store) List() []*types.Incident {
	s.mu.Lock()
	out := make([]*types.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.incidents[id].Clone())
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out
}

func transitionAllowed(from, to types.IncidentState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Store) updateStateGaugeLocked() {
	counts := make(map[types.IncidentState]int)
	for _, inc := range s.incidents {
		counts[inc.State]++
	}
	for _, state := range []types.IncidentState{
		types.IncidentStateNew,
		types.IncidentStateAnalyzing,
		types.IncidentStateRemediating,
		types.IncidentStateVerifying,
		types.IncidentStateResolved,
		types.IncidentStateFailed,
		types.IncidentStateUnresolved,
	} {
		metrics.IncidentsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

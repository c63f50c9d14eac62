package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

func testContainer() *types.Container {
	return &types.Container{
		ID:      "cont-1",
		Name:    "demo-api",
		Service: "api",
		Status:  types.ContainerStatusRunning,
	}
}

func verdictAt(seq uint64, at time.Time) types.AnomalyVerdict {
	return types.AnomalyVerdict{
		IsAnomaly:  true,
		Severity:   types.SeverityHigh,
		Confidence: 0.92,
		Pattern:    "connection_refused",
		WindowSeq:  seq,
		DetectedAt: at,
	}
}

func TestAccept_OpensIncident(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	sub := b.Subscribe([]string{bus.TopicIncident}, 8)
	defer sub.Close()

	inc, reason := store.Accept(testContainer(), verdictAt(1, time.Now()))
	require.NotNil(t, inc)
	assert.Equal(t, RejectNone, reason)
	assert.Equal(t, "INC-1", inc.ID)
	assert.Equal(t, types.IncidentStateNew, inc.State)
	assert.Equal(t, "api", inc.Service)

	select {
	case ev := <-sub.C:
		published, ok := ev.Payload.(*types.Incident)
		require.True(t, ok)
		assert.Equal(t, "INC-1", published.ID)
	case <-time.After(time.Second):
		t.Fatal("no incident event published")
	}
}

func TestAccept_RejectsWhileOpen(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	now := time.Now()
	inc, _ := store.Accept(testContainer(), verdictAt(1, now))
	require.NotNil(t, inc)

	// second verdict 20s later while the first incident is still open
	dup, reason := store.Accept(testContainer(), verdictAt(2, now.Add(20*time.Second)))
	assert.Nil(t, dup)
	assert.Equal(t, RejectOpenIncident, reason)
}

func TestAccept_DebounceAfterTerminal(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	now := time.Now()
	inc, _ := store.Accept(testContainer(), verdictAt(1, now))
	require.NotNil(t, inc)

	// drive to terminal so the open-incident rule no longer applies
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateAnalyzing, nil))
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateUnresolved, nil))

	// inside the debounce window
	dup, reason := store.Accept(testContainer(), verdictAt(2, now.Add(30*time.Second)))
	assert.Nil(t, dup)
	assert.Equal(t, RejectDebounced, reason)

	// at the window boundary a new incident opens
	next, reason := store.Accept(testContainer(), verdictAt(3, now.Add(DebounceWindow)))
	require.NotNil(t, next)
	assert.Equal(t, RejectNone, reason)
	assert.Equal(t, "INC-2", next.ID)
}

func TestAccept_RejectsStaleWindow(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	now := time.Now()
	inc, _ := store.Accept(testContainer(), verdictAt(5, now))
	require.NotNil(t, inc)
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateAnalyzing, nil))
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateUnresolved, nil))

	stale, reason := store.Accept(testContainer(), verdictAt(5, now.Add(2*DebounceWindow)))
	assert.Nil(t, stale)
	assert.Equal(t, RejectStaleWindow, reason)
}

func TestTransition_LegalPath(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	sub := b.Subscribe([]string{bus.TopicIncidentUpdate}, 16)
	defer sub.Close()

	inc, _ := store.Accept(testContainer(), verdictAt(1, time.Now()))
	require.NotNil(t, inc)

	path := []types.IncidentState{
		types.IncidentStateAnalyzing,
		types.IncidentStateRemediating,
		types.IncidentStateVerifying,
		types.IncidentStateResolved,
	}
	for _, state := range path {
		require.NoError(t, store.Transition(inc.ID, state, nil))
	}

	final, ok := store.Get(inc.ID)
	require.True(t, ok)
	assert.Equal(t, types.IncidentStateResolved, final.State)
	require.NotNil(t, final.ResolvedAt)

	// one incident_update per transition, in order
	var states []types.IncidentState
	deadline := time.After(time.Second)
	for len(states) < len(path) {
		select {
		case ev := <-sub.C:
			states = append(states, ev.Payload.(*types.Incident).State)
		case <-deadline:
			t.Fatalf("saw %d of %d updates", len(states), len(path))
		}
	}
	assert.Equal(t, path, states)
}

func TestTransition_IllegalEdgeRejected(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	inc, _ := store.Accept(testContainer(), verdictAt(1, time.Now()))
	require.NotNil(t, inc)

	err := store.Transition(inc.ID, types.IncidentStateResolved, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal transition")
}

func TestTransition_TerminalNeverMutated(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	inc, _ := store.Accept(testContainer(), verdictAt(1, time.Now()))
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateAnalyzing, nil))
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateUnresolved, nil))

	err := store.Transition(inc.ID, types.IncidentStateRemediating, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")

	err = store.AppendOutcome(inc.ID, types.ActionOutcome{Tool: "restart_container"})
	require.Error(t, err)
}

func TestAppendOutcome_PublishesEvent(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	sub := b.Subscribe([]string{bus.TopicActionOutcome}, 8)
	defer sub.Close()

	inc, _ := store.Accept(testContainer(), verdictAt(1, time.Now()))
	require.NoError(t, store.Transition(inc.ID, types.IncidentStateAnalyzing, nil))

	outcome := types.ActionOutcome{Tool: "restart_container", Success: true, Attempt: 1}
	require.NoError(t, store.AppendOutcome(inc.ID, outcome))

	got, ok := store.Get(inc.ID)
	require.True(t, ok)
	require.Len(t, got.Outcomes, 1)
	assert.Equal(t, inc.ID, got.Outcomes[0].IncidentID)

	select {
	case ev := <-sub.C:
		published := ev.Payload.(types.ActionOutcome)
		assert.Equal(t, "restart_container", published.Tool)
		assert.True(t, published.Success)
	case <-time.After(time.Second):
		t.Fatal("no action_outcome event published")
	}
}

func TestList_OrderedByDetection(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	base := time.Now()
	containers := []*types.Container{
		{ID: "a", Name: "a", Service: "a"},
		{ID: "b", Name: "b", Service: "b"},
		{ID: "c", Name: "c", Service: "c"},
	}
	for i, c := range containers {
		inc, _ := store.Accept(c, verdictAt(1, base.Add(time.Duration(i)*time.Minute)))
		require.NotNil(t, inc)
	}

	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, "INC-1", list[0].ID)
	assert.Equal(t, "INC-3", list[2].ID)
	assert.True(t, list[0].DetectedAt.Before(list[1].DetectedAt))
}

func TestGet_ReturnsCopy(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	store := NewStore(b)

	inc, _ := store.Accept(testContainer(), verdictAt(1, time.Now()))
	copy1, _ := store.Get(inc.ID)
	copy1.Service = "mutated"

	copy2, _ := store.Get(inc.ID)
	assert.Equal(t, "api", copy2.Service)
}

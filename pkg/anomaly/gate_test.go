package anomaly

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/inference"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

type scriptedClassifier struct {
	verdict *types.AnomalyVerdict
	err     error

	mu   sync.Mutex
	reqs []inference.ClassifyRequest
}

func (s *scriptedClassifier) Classify(ctx context.Context, req inference.ClassifyRequest) (*types.AnomalyVerdict, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	v := *s.verdict
	v.WindowSeq = req.WindowSeq
	return &v, nil
}

type fixedDescriptors struct {
	c *types.Container
}

func (f *fixedDescriptors) Get(id string) (*types.Container, bool) {
	if f.c == nil || f.c.ID != id {
		return nil, false
	}
	return f.c, true
}

type verdictCapture struct {
	mu       sync.Mutex
	verdicts []types.AnomalyVerdict
}

func (v *verdictCapture) HandleVerdict(c *types.Container, verdict types.AnomalyVerdict, window types.LogWindow) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.verdicts = append(v.verdicts, verdict)
}

func (v *verdictCapture) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.verdicts)
}

func window(seq uint64) types.LogWindow {
	return types.LogWindow{
		ContainerID:   "cont-1",
		ContainerName: "demo-api",
		Service:       "api",
		Seq:           seq,
		Lines: []types.LogLine{
			{Message: "connection refused to demo-postgres", Timestamp: time.Now()},
		},
	}
}

func runGate(t *testing.T, classifier Classifier, descriptors DescriptorSource, sink VerdictSink, windows ...types.LogWindow) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := New(classifier, descriptors, sink)
	g.Start(ctx)
	for _, w := range windows {
		g.Submit(w)
	}
	time.Sleep(200 * time.Millisecond)
}

func anomalyVerdict(confidence float64) *types.AnomalyVerdict {
	return &types.AnomalyVerdict{
		IsAnomaly:  true,
		Severity:   types.SeverityHigh,
		Confidence: confidence,
		Pattern:    "connection_refused",
		DetectedAt: time.Now(),
	}
}

func TestGate_ConfidenceBoundary(t *testing.T) {
	descriptors := &fixedDescriptors{c: &types.Container{ID: "cont-1", Name: "demo-api", Service: "api"}}

	// 0.699 stays below the gate
	sink := &verdictCapture{}
	runGate(t, &scriptedClassifier{verdict: anomalyVerdict(0.699)}, descriptors, sink, window(1))
	assert.Zero(t, sink.count())

	// 0.700 passes
	sink = &verdictCapture{}
	runGate(t, &scriptedClassifier{verdict: anomalyVerdict(0.700)}, descriptors, sink, window(1))
	require.Equal(t, 1, sink.count())
	assert.Equal(t, uint64(1), sink.verdicts[0].WindowSeq)
}

func TestGate_NonAnomalyDropped(t *testing.T) {
	descriptors := &fixedDescriptors{c: &types.Container{ID: "cont-1"}}
	verdict := anomalyVerdict(0.95)
	verdict.IsAnomaly = false

	sink := &verdictCapture{}
	runGate(t, &scriptedClassifier{verdict: verdict}, descriptors, sink, window(1))
	assert.Zero(t, sink.count())
}

func TestGate_ClassifierErrorSkipsWindow(t *testing.T) {
	descriptors := &fixedDescriptors{c: &types.Container{ID: "cont-1"}}
	classifier := &scriptedClassifier{err: types.NewError(types.ErrClassifier, "classify", errors.New("timeout"))}

	sink := &verdictCapture{}
	runGate(t, classifier, descriptors, sink, window(1), window(2))
	assert.Zero(t, sink.count())

	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	assert.Len(t, classifier.reqs, 2, "every window is still attempted")
}

func TestGate_EnrichesWithDescriptorMetadata(t *testing.T) {
	descriptors := &fixedDescriptors{c: &types.Container{
		ID:           "cont-1",
		Name:         "demo-api",
		Service:      "api",
		RestartCount: 3,
		LastSample: &types.ResourceSample{
			CPUPercent:    87.5,
			MemoryPercent: 64.0,
		},
	}}
	classifier := &scriptedClassifier{verdict: anomalyVerdict(0.9)}

	sink := &verdictCapture{}
	runGate(t, classifier, descriptors, sink, window(1))

	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	require.Len(t, classifier.reqs, 1)
	req := classifier.reqs[0]
	assert.True(t, req.HasMetadata)
	assert.InDelta(t, 87.5, req.CPUPercent, 0.01)
	assert.Equal(t, 3, req.RestartCount)
	assert.Equal(t, []string{"connection refused to demo-postgres"}, req.Lines)
}

func TestGate_UnknownContainerDropped(t *testing.T) {
	classifier := &scriptedClassifier{verdict: anomalyVerdict(0.9)}

	sink := &verdictCapture{}
	runGate(t, classifier, &fixedDescriptors{}, sink, window(1))
	assert.Zero(t, sink.count())
}

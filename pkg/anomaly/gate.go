package anomaly

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/inference"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// workerCount bounds concurrent classifier calls
const workerCount = 4

// queueSize bounds windows awaiting classification. The ingester never
// blocks on a slow classifier; overflow windows are skipped.
const queueSize = 64

// Classifier is the fast inference call. Implemented by inference.Client.
type Classifier interface {
	Classify(ctx context.Context, req inference.ClassifyRequest) (*types.AnomalyVerdict, error)
}

// DescriptorSource supplies current container descriptors for request
// enrichment. Implemented by the registry.
type DescriptorSource interface {
	Get(id string) (*types.Container, bool)
}

// VerdictSink receives verdicts that pass the gate, together with the
// triggering window. Implemented by the incident manager.
type VerdictSink interface {
	HandleVerdict(c *types.Container, verdict types.AnomalyVerdict, window types.LogWindow)
}

// Gate classifies log windows and forwards qualifying verdicts to the
// incident store. It implements ingest.WindowSink.
type Gate struct {
	classifier  Classifier
	descriptors DescriptorSource
	sink        VerdictSink
	logger      zerolog.Logger

	queue chan types.LogWindow
}

// New creates a Gate. Call Start before submitting windows.
func New(classifier Classifier, descriptors DescriptorSource, sink VerdictSink) *Gate {
	return &Gate{
		classifier:  classifier,
		descriptors: descriptors,
		sink:        sink,
		logger:      log.WithComponent("anomaly-gate"),
		queue:       make(chan types.LogWindow, queueSize),
	}
}

// Start launches the classification workers, which run until ctx is
// cancelled
func (g *Gate) Start(ctx context.Context) {
	for i := 0; i < workerCount; i++ {
		go g.worker(ctx)
	}
}

// Submit enqueues a window for classification. Never blocks; when the queue
// is saturated the window is skipped, since a healthy classifier drains far
// faster than windows arrive.
func (g *Gate) Submit(w types.LogWindow) {
	select {
	case g.queue <- w:
	default:
		metrics.WindowsClassified.WithLabelValues("skipped").Inc()
		g.logger.Warn().
			Str("container", w.ContainerName).
			Uint64("seq", w.Seq).
			Msg("classification queue full, window skipped")
	}
}

func (g *Gate) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-g.queue:
			g.classify(ctx, w)
		}
	}
}

func (g *Gate) classify(ctx context.Context, w types.LogWindow) {
	req := inference.ClassifyRequest{
		Service:   w.Service,
		WindowSeq: w.Seq,
		Lines:     make([]string, 0, len(w.Lines)),
	}
	for _, line := range w.Lines {
		req.Lines = append(req.Lines, line.Message)
	}

	descriptor, ok := g.descriptors.Get(w.ContainerID)
	if ok && descriptor.LastSample != nil {
		req.HasMetadata = true
		req.CPUPercent = descriptor.LastSample.CPUPercent
		req.MemPercent = descriptor.LastSample.MemoryPercent
		req.RestartCount = descriptor.RestartCount
	}

	verdict, err := g.classifier.Classify(ctx, req)
	if err != nil {
		metrics.WindowsClassified.WithLabelValues("error").Inc()
		g.logger.Warn().Err(err).
			Str("container", w.ContainerName).
			Uint64("seq", w.Seq).
			Msg("classification failed, window skipped")
		return
	}

	if !verdict.IsAnomaly || verdict.Confidence < types.ConfidenceThreshold {
		metrics.WindowsClassified.WithLabelValues("normal").Inc()
		return
	}
	metrics.WindowsClassified.WithLabelValues("anomaly").Inc()

	if !ok {
		// container vanished between window emission and classification
		g.logger.Debug().
			Str("container", w.ContainerName).
			Msg("verdict for unknown container dropped")
		return
	}

	g.logger.Info().
		Str("container", w.ContainerName).
		Str("severity", string(verdict.Severity)).
		Float64("confidence", verdict.Confidence).
		Str("pattern", verdict.Pattern).
		Msg("anomaly detected")

	g.sink.HandleVerdict(descriptor, *verdict, w)
}

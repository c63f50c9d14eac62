package ingest

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/redact"
	"github.com/sre-sentinel/sentinel/pkg/retry"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	// FlushInterval bounds how long a partial window may sit buffered
	FlushInterval = 2 * time.Second

	// reattach backoff bounds for lost engine streams
	backoffStart = time.Second
	backoffCap   = 30 * time.Second
	backoffMult  = 2.0
)

// WindowSink consumes emitted log windows. Submit must not block for long;
// the anomaly gate hands windows off to its own workers.
type WindowSink interface {
	Submit(w types.LogWindow)
}

// Ingester follows container log streams and batches lines into fixed-size
// windows. One goroutine runs per monitored container, started through the
// registry's MonitorStarter hook.
type Ingester struct {
	eng        engine.Engine
	bus        *bus.Bus
	sink       WindowSink
	windowSize int
}

// New creates an Ingester emitting windows of windowSize lines to sink
func New(eng engine.Engine, b *bus.Bus, sink WindowSink, windowSize int) *Ingester {
	if windowSize < 1 {
		windowSize = 20
	}
	return &Ingester{eng: eng, bus: b, sink: sink, windowSize: windowSize}
}

// Start launches the follower for one container. Implements
// registry.MonitorStarter.
func (i *Ingester) Start(ctx context.Context, c *types.Container) {
	go i.run(ctx, *c)
}

func (i *Ingester) run(ctx context.Context, c types.Container) {
	logger := log.WithContainer(c.ID, c.Name).With().Str("component", "ingester").Logger()
	logger.Info().Msg("log ingester started")

	w := &windower{
		container: c,
		size:      i.windowSize,
	}

	flush := time.NewTicker(FlushInterval)
	defer flush.Stop()

	backoff := newStreamBackoff()

	for {
		if err := ctx.Err(); err != nil {
			i.drain(w, logger)
			return
		}

		lines, closeStream, err := i.attach(ctx, c.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("log stream attach failed")
			if !backoff.wait(ctx) {
				i.drain(w, logger)
				return
			}
			metrics.StreamReattachesTotal.Inc()
			continue
		}
		backoff.reset()
		logger.Debug().Msg("log stream attached")

		if !i.consume(ctx, w, lines, flush) {
			closeStream()
			i.drain(w, logger)
			return
		}
		closeStream()

		// stream ended without cancellation: engine disconnect or
		// container restart. Buffered lines stay put; the flush ticker
		// emits the partial window once the interval elapses after
		// re-attach.
		logger.Warn().Msg("log stream lost, re-attaching")
		if !backoff.wait(ctx) {
			i.drain(w, logger)
			return
		}
		metrics.StreamReattachesTotal.Inc()
	}
}

// consume pumps lines into the windower until the stream ends (returns true)
// or the context is cancelled (returns false).
func (i *Ingester) consume(ctx context.Context, w *windower, lines <-chan rawLine, flush *time.Ticker) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-flush.C:
			if win := w.flush(); win != nil {
				i.emit(*win)
			}
		case raw, ok := <-lines:
			if !ok {
				return true
			}
			line := i.publishLine(w.container, raw)
			if win := w.add(line); win != nil {
				i.emit(*win)
			}
		}
	}
}

// attach opens the engine log stream from now and scans it on a goroutine
func (i *Ingester) attach(ctx context.Context, id string) (<-chan rawLine, func(), error) {
	stream, err := i.eng.FollowLogs(ctx, id, time.Now())
	if err != nil {
		return nil, nil, err
	}

	reader := engine.Demux(ctx, stream)
	out := make(chan rawLine, 64)

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			ts, msg := splitTimestamp(scanner.Text())
			select {
			case out <- rawLine{ts: ts, msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { reader.Close() }, nil
}

// publishLine redacts, levels, and publishes one line on the log topic,
// returning the typed line for windowing
func (i *Ingester) publishLine(c types.Container, raw rawLine) types.LogLine {
	line := types.LogLine{
		ContainerID:   c.ID,
		ContainerName: c.Name,
		Service:       c.Service,
		Timestamp:     raw.ts,
		Level:         InferLevel(raw.msg),
		Message:       redact.String(raw.msg),
	}
	metrics.LogLinesTotal.WithLabelValues(string(line.Level)).Inc()
	i.bus.Publish(bus.TopicLog, line)
	return line
}

func (i *Ingester) emit(w types.LogWindow) {
	metrics.LogWindowsEmitted.Inc()
	i.sink.Submit(w)
}

// drain emits any buffered partial window before exit
func (i *Ingester) drain(w *windower, logger zerolog.Logger) {
	if win := w.flush(); win != nil {
		i.emit(*win)
	}
	logger.Info().Msg("log ingester stopped")
}

type rawLine struct {
	ts  time.Time
	msg string
}

// splitTimestamp strips the engine's RFC3339Nano timestamp prefix when
// present, falling back to wall clock
func splitTimestamp(line string) (time.Time, string) {
	if idx := strings.IndexByte(line, ' '); idx > 0 {
		if t, err := time.Parse(time.RFC3339Nano, line[:idx]); err == nil {
			return t, line[idx+1:]
		}
	}
	return time.Now(), line
}

// InferLevel applies the line-level heuristics used for dashboard coloring
func InferLevel(msg string) types.LogLevel {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "fatal"):
		return types.LogLevelError
	case strings.Contains(lower, "warn"):
		return types.LogLevelWarn
	case strings.Contains(lower, "debug"):
		return types.LogLevelDebug
	default:
		return types.LogLevelInfo
	}
}

// windower accumulates lines into sequenced windows for one container
type windower struct {
	container types.Container
	size      int
	buf       []types.LogLine
	seq       uint64
}

// add appends a line and returns a full window when the size is reached
func (w *windower) add(line types.LogLine) *types.LogWindow {
	w.buf = append(w.buf, line)
	if len(w.buf) >= w.size {
		return w.flush()
	}
	return nil
}

// flush emits whatever is buffered, or nil when empty
func (w *windower) flush() *types.LogWindow {
	if len(w.buf) == 0 {
		return nil
	}
	w.seq++
	win := &types.LogWindow{
		ContainerID:   w.container.ID,
		ContainerName: w.container.Name,
		Service:       w.container.Service,
		Seq:           w.seq,
		Lines:         w.buf,
		First:         w.buf[0].Timestamp,
		Last:          w.buf[len(w.buf)-1].Timestamp,
	}
	w.buf = nil
	return win
}

// streamBackoff wraps the shared backoff with context-aware waiting
type streamBackoff struct {
	delays *retry.Backoff
}

func newStreamBackoff() *streamBackoff {
	return &streamBackoff{delays: retry.NewBackoff(backoffStart, backoffCap, backoffMult)}
}

func (b *streamBackoff) reset() { b.delays.Reset() }

// wait sleeps for the next backoff delay; returns false when cancelled
func (b *streamBackoff) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(b.delays.Next()):
		return true
	}
}

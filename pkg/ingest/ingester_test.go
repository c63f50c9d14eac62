package ingest

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/bus"
	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

func TestInferLevel(t *testing.T) {
	tests := []struct {
		line  string
		level types.LogLevel
	}{
		{"ERROR: connection refused", types.LogLevelError},
		{"fatal: out of memory", types.LogLevelError},
		{"WARN slow query detected", types.LogLevelWarn},
		{"DEBUG cache hit ratio 0.97", types.LogLevelDebug},
		{"request served in 12ms", types.LogLevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, InferLevel(tt.line), tt.line)
	}
}

func TestSplitTimestamp(t *testing.T) {
	ts, msg := splitTimestamp("2026-03-01T12:00:00.000000000Z hello world")
	assert.Equal(t, "hello world", msg)
	assert.Equal(t, 2026, ts.Year())

	before := time.Now()
	ts, msg = splitTimestamp("no timestamp here")
	assert.Equal(t, "no timestamp here", msg)
	assert.False(t, ts.Before(before))
}

func TestWindower_EmitsAtSize(t *testing.T) {
	w := &windower{container: types.Container{ID: "c1", Name: "api"}, size: 3}

	line := func(msg string) types.LogLine {
		return types.LogLine{Message: msg, Timestamp: time.Now()}
	}

	assert.Nil(t, w.add(line("a")))
	assert.Nil(t, w.add(line("b")))
	win := w.add(line("c"))
	require.NotNil(t, win)
	assert.Equal(t, uint64(1), win.Seq)
	assert.Len(t, win.Lines, 3)
	assert.Equal(t, "a", win.Lines[0].Message)

	// next window gets the next sequence number
	w.add(line("d"))
	w.add(line("e"))
	win = w.add(line("f"))
	require.NotNil(t, win)
	assert.Equal(t, uint64(2), win.Seq)
}

func TestWindower_FlushPartial(t *testing.T) {
	w := &windower{container: types.Container{ID: "c1"}, size: 20}

	assert.Nil(t, w.flush(), "empty buffer flushes nothing")

	w.add(types.LogLine{Message: "only line", Timestamp: time.Now()})
	win := w.flush()
	require.NotNil(t, win)
	assert.Len(t, win.Lines, 1)
	assert.Equal(t, win.First, win.Last)

	assert.Nil(t, w.flush(), "buffer is consumed by flush")
}

// fakeEngine serves a scripted log stream for one container
type fakeEngine struct {
	engine.Engine
	logs string
}

func (f *fakeEngine) FollowLogs(ctx context.Context, id string, since time.Time) (*engine.LogStream, error) {
	return &engine.LogStream{Reader: io.NopCloser(strings.NewReader(f.logs)), TTY: true}, nil
}

type captureSink struct {
	mu      sync.Mutex
	windows []types.LogWindow
}

func (c *captureSink) Submit(w types.LogWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append(c.windows, w)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

func TestIngester_WindowsAndLinePublish(t *testing.T) {
	eng := &fakeEngine{logs: strings.Repeat("an error occurred\n", 4)}
	b := bus.New(nil)
	defer b.Close()

	sub := b.Subscribe([]string{bus.TopicLog}, 16)
	defer sub.Close()

	sink := &captureSink{}
	ing := New(eng, b, sink, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ing.Start(ctx, &types.Container{ID: "c1", Name: "api", Service: "api"})

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	first := sink.windows[0]
	second := sink.windows[1]
	sink.mu.Unlock()

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Len(t, first.Lines, 2)
	assert.Equal(t, "api", first.Service)
	assert.Equal(t, types.LogLevelError, first.Lines[0].Level)

	// every line also went out individually on the log topic
	deadline := time.After(time.Second)
	seen := 0
	for seen < 4 {
		select {
		case ev := <-sub.C:
			line, ok := ev.Payload.(types.LogLine)
			require.True(t, ok)
			assert.Equal(t, "an error occurred", line.Message)
			seen++
		case <-deadline:
			t.Fatalf("saw %d of 4 log lines", seen)
		}
	}
}

func TestIngester_DrainsPartialWindowOnCancel(t *testing.T) {
	eng := &fakeEngine{logs: "lonely line\n"}
	b := bus.New(nil)
	defer b.Close()

	sink := &captureSink{}
	ing := New(eng, b, sink, 20)

	ctx, cancel := context.WithCancel(context.Background())
	ing.Start(ctx, &types.Container{ID: "c1", Name: "api", Service: "api"})

	// let the line arrive, then cancel before any flush interval elapses
	time.Sleep(100 * time.Millisecond)
	cancel()

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.windows[0].Lines, 1)
}

package engine

import (
	"context"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

// Demux turns an engine log stream into a plain line-oriented reader. TTY
// streams pass through untouched; non-TTY streams are demultiplexed from the
// engine's stdout/stderr framing, with both channels interleaved in arrival
// order. Closing the returned reader closes the underlying stream.
func Demux(ctx context.Context, stream *LogStream) io.ReadCloser {
	if stream.TTY {
		return stream.Reader
	}

	pr, pw := io.Pipe()
	go func() {
		// StdCopy returns when the source errors or is closed; cancelling
		// ctx closes the source, which unblocks the pending Read.
		_, err := stdcopy.StdCopy(pw, pw, readerCtx{ctx: ctx, r: stream.Reader})
		pw.CloseWithError(err)
	}()

	return &demuxed{pr: pr, src: stream.Reader}
}

type demuxed struct {
	pr  *io.PipeReader
	src io.ReadCloser
}

func (d *demuxed) Read(p []byte) (int, error) {
	return d.pr.Read(p)
}

func (d *demuxed) Close() error {
	d.pr.Close()
	return d.src.Close()
}

// readerCtx aborts blocked reads once the context is cancelled, so StdCopy
// stops cooperatively instead of hanging on a dead stream.
type readerCtx struct {
	ctx context.Context
	r   io.Reader
}

func (r readerCtx) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

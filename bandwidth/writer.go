package bandwidth

import (
	"context"
)

// Writer adapts a Throttle to io.WriteCloser so ordinary io.Copy
// pipelines can feed a throttled stream. Write blocks while the
// throttle sits above its high-water mark; Close signals end-of-stream
// and waits for the final drain.
type Writer struct {
	ctx context.Context
	t   *Throttle
}

// NewWriter returns an io.WriteCloser feeding t. ctx bounds every
// blocking wait: cancelling it unblocks Write and Close with ctx's
// error, leaving the throttle itself untouched for the caller to abort
// or destroy.
func NewWriter(ctx context.Context, t *Throttle) *Writer {
	return &Writer{ctx: ctx, t: t}
}

// Write buffers p into the throttle, honouring its backpressure signal.
func (w *Writer) Write(p []byte) (int, error) {
	ok, err := w.t.Write(p)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := w.t.WaitWritable(w.ctx); err != nil {
			// p was accepted before the pause failed; report the error
			// with the accepted length so the producer stops cleanly.
			return len(p), err
		}
	}
	return len(p), nil
}

// Close ends the throttle's input and waits until every pending byte
// reached the sink, returning the sink failure if one ended the stream.
func (w *Writer) Close() error {
	if err := w.t.End(); err != nil {
		return err
	}
	select {
	case <-w.t.Done():
		return w.t.Err()
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

package bandwidth

import (
	"io"
	"net/http"
)

// Sink is the downstream collaborator receiving the bytes a Throttle
// releases. Implementations must not retain p beyond the Push call.
//
// Push reports ok=false when the sink cannot accept more input yet; the
// throttle then suspends its drain until Ready is called on it, and the
// resumed drain stays within the same tick's remaining allotment. An
// error from Push is fatal for the throttle: it behaves exactly like
// Abort and the error is surfaced through Err and subsequent Write
// calls.
type Sink interface {
	Push(p []byte) (ok bool, err error)

	// Close delivers the end-of-stream signal once every pending byte
	// has been released.
	Close() error
}

// writerSink adapts an io.Writer into an always-ready Sink.
type writerSink struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriterSink returns a Sink writing every released chunk to w. When
// w implements http.Flusher each chunk is flushed immediately, so a
// throttled HTTP response paces on the wire instead of in a buffer.
// Close closes w when it is an io.Closer.
func NewWriterSink(w io.Writer) Sink {
	s := &writerSink{w: w}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

func (s *writerSink) Push(p []byte) (bool, error) {
	if _, err := s.w.Write(p); err != nil {
		return false, err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return true, nil
}

func (s *writerSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package metrics

import (
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/slink/bandwidth"
)

// ObservedSink decorates a bandwidth.Sink so every release and the
// clean end of the stream land in an Engine. Aborts never reach a
// sink's Close, so callers tearing a stream down early report those
// through Engine.StreamAborted themselves.
type ObservedSink struct {
	inner  bandwidth.Sink
	engine *Engine
	opened time.Time
	bytes  atomic.Int64
	closed atomic.Bool
}

// Observe wraps sink and records the stream as opened.
func Observe(sink bandwidth.Sink, engine *Engine) *ObservedSink {
	engine.StreamOpened()
	return &ObservedSink{
		inner:  sink,
		engine: engine,
		opened: time.Now(),
	}
}

// Push forwards to the wrapped sink, counting the released bytes.
func (s *ObservedSink) Push(p []byte) (bool, error) {
	ok, err := s.inner.Push(p)
	if err == nil {
		s.bytes.Add(int64(len(p)))
		s.engine.RecordRelease(len(p))
	}
	return ok, err
}

// Close forwards to the wrapped sink and records the completed
// transfer's lifetime.
func (s *ObservedSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.engine.StreamEnded(time.Since(s.opened))
	}
	return s.inner.Close()
}

// Bytes returns the number of bytes released through this sink.
func (s *ObservedSink) Bytes() int64 {
	return s.bytes.Load()
}

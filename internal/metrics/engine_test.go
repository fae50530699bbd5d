package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}

	// Check initial state
	snapshot := engine.GetSnapshot()
	if snapshot.StreamsOpened != 0 {
		t.Errorf("Initial StreamsOpened = %d, want 0", snapshot.StreamsOpened)
	}
	if snapshot.BytesReleased != 0 {
		t.Errorf("Initial BytesReleased = %d, want 0", snapshot.BytesReleased)
	}
	if snapshot.Transfer.Count != 0 {
		t.Errorf("Initial Transfer.Count = %d, want 0", snapshot.Transfer.Count)
	}
}

func TestEngine_StreamLifecycle(t *testing.T) {
	engine := NewEngine()

	engine.StreamOpened()
	engine.StreamOpened()
	engine.StreamOpened()

	if got := engine.ActiveStreams(); got != 3 {
		t.Errorf("ActiveStreams = %d, want 3", got)
	}

	engine.StreamEnded(10 * time.Millisecond)
	engine.StreamEnded(20 * time.Millisecond)
	engine.StreamAborted()

	snapshot := engine.GetSnapshot()
	if snapshot.StreamsOpened != 3 {
		t.Errorf("StreamsOpened = %d, want 3", snapshot.StreamsOpened)
	}
	if snapshot.StreamsEnded != 2 {
		t.Errorf("StreamsEnded = %d, want 2", snapshot.StreamsEnded)
	}
	if snapshot.StreamsAborted != 1 {
		t.Errorf("StreamsAborted = %d, want 1", snapshot.StreamsAborted)
	}
	if snapshot.ActiveStreams != 0 {
		t.Errorf("ActiveStreams = %d, want 0", snapshot.ActiveStreams)
	}

	// Aborted streams stay out of the transfer histogram.
	if snapshot.Transfer.Count != 2 {
		t.Errorf("Transfer.Count = %d, want 2", snapshot.Transfer.Count)
	}
}

func TestEngine_RecordRelease(t *testing.T) {
	engine := NewEngine()

	engine.RecordRelease(1000)
	engine.RecordRelease(2000)
	engine.RecordRelease(500)

	snapshot := engine.GetSnapshot()
	if snapshot.BytesReleased != 3500 {
		t.Errorf("BytesReleased = %d, want 3500", snapshot.BytesReleased)
	}
	if snapshot.Releases != 3 {
		t.Errorf("Releases = %d, want 3", snapshot.Releases)
	}
	if snapshot.Throughput <= 0 {
		t.Errorf("Throughput = %v, want > 0", snapshot.Throughput)
	}
}

func TestEngine_TransferPercentiles(t *testing.T) {
	engine := NewEngine()

	// Record durations with known distribution
	durations := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		60 * time.Millisecond,
		70 * time.Millisecond,
		80 * time.Millisecond,
		90 * time.Millisecond,
		100 * time.Millisecond,
	}
	for _, d := range durations {
		engine.StreamOpened()
		engine.StreamEnded(d)
	}

	stats := engine.GetSnapshot().Transfer

	// P50 should be around 50ms (with some tolerance for HDR histogram binning)
	if stats.P50 < 40*time.Millisecond || stats.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms (±10ms)", stats.P50)
	}

	// P99 should be close to 100ms
	if stats.P99 < 90*time.Millisecond || stats.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms (±10ms)", stats.P99)
	}

	// Min should be 10ms
	if stats.Min < 9*time.Millisecond || stats.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", stats.Min)
	}

	// Max should be 100ms
	if stats.Max < 99*time.Millisecond || stats.Max > 101*time.Millisecond {
		t.Errorf("Max = %v, want ~100ms", stats.Max)
	}
}

func TestEngine_RecordStall(t *testing.T) {
	engine := NewEngine()

	engine.RecordStall(5 * time.Millisecond)
	engine.RecordStall(15 * time.Millisecond)

	stall := engine.GetSnapshot().Stall
	if stall.Count != 2 {
		t.Errorf("Stall.Count = %d, want 2", stall.Count)
	}
	if stall.Max < 14*time.Millisecond || stall.Max > 16*time.Millisecond {
		t.Errorf("Stall.Max = %v, want ~15ms", stall.Max)
	}

	// Stalls never leak into transfer durations.
	if got := engine.GetSnapshot().Transfer.Count; got != 0 {
		t.Errorf("Transfer.Count = %d, want 0", got)
	}
}

func TestEngine_Reset(t *testing.T) {
	engine := NewEngine()

	engine.StreamOpened()
	engine.StreamEnded(10 * time.Millisecond)
	engine.RecordRelease(100)
	engine.RecordStall(time.Millisecond)

	snapshot := engine.GetSnapshot()
	if snapshot.StreamsOpened != 1 {
		t.Errorf("Before reset, StreamsOpened = %d, want 1", snapshot.StreamsOpened)
	}

	engine.Reset()

	snapshot = engine.GetSnapshot()
	if snapshot.StreamsOpened != 0 {
		t.Errorf("After reset, StreamsOpened = %d, want 0", snapshot.StreamsOpened)
	}
	if snapshot.BytesReleased != 0 {
		t.Errorf("After reset, BytesReleased = %d, want 0", snapshot.BytesReleased)
	}
	if snapshot.Transfer.Count != 0 {
		t.Errorf("After reset, Transfer.Count = %d, want 0", snapshot.Transfer.Count)
	}
	if snapshot.Stall.Count != 0 {
		t.Errorf("After reset, Stall.Count = %d, want 0", snapshot.Stall.Count)
	}
	if snapshot.ActiveStreams != 0 {
		t.Errorf("After reset, ActiveStreams = %d, want 0", snapshot.ActiveStreams)
	}
}

func TestEngineWithConfig(t *testing.T) {
	config := EngineConfig{
		HistogramMin:     1,
		HistogramMax:     60000000, // 1 minute in microseconds
		HistogramSigFigs: 2,
	}

	engine := NewEngineWithConfig(config)
	if engine == nil {
		t.Fatal("NewEngineWithConfig() returned nil")
	}

	engine.StreamOpened()
	engine.StreamEnded(10 * time.Millisecond)

	snapshot := engine.GetSnapshot()
	if snapshot.StreamsEnded != 1 {
		t.Errorf("StreamsEnded = %d, want 1", snapshot.StreamsEnded)
	}
}

// stubSink is a minimal bandwidth.Sink for decorator tests.
type stubSink struct {
	pushed  int
	closes  int
	pushErr error
}

func (s *stubSink) Push(p []byte) (bool, error) {
	if s.pushErr != nil {
		return false, s.pushErr
	}
	s.pushed += len(p)
	return true, nil
}

func (s *stubSink) Close() error {
	s.closes++
	return nil
}

func TestObservedSink(t *testing.T) {
	engine := NewEngine()
	inner := &stubSink{}

	sink := Observe(inner, engine)
	if got := engine.ActiveStreams(); got != 1 {
		t.Fatalf("ActiveStreams after Observe = %d, want 1", got)
	}

	if ok, err := sink.Push(make([]byte, 100)); !ok || err != nil {
		t.Fatalf("Push() = (%v, %v), want (true, nil)", ok, err)
	}
	sink.Push(make([]byte, 50))

	if got := sink.Bytes(); got != 150 {
		t.Errorf("Bytes() = %d, want 150", got)
	}
	if got := engine.BytesReleased(); got != 150 {
		t.Errorf("engine BytesReleased = %d, want 150", got)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if inner.closes != 1 {
		t.Errorf("inner sink closed %d times, want 1", inner.closes)
	}

	snapshot := engine.GetSnapshot()
	if snapshot.StreamsEnded != 1 {
		t.Errorf("StreamsEnded = %d, want 1", snapshot.StreamsEnded)
	}
	if snapshot.ActiveStreams != 0 {
		t.Errorf("ActiveStreams = %d, want 0", snapshot.ActiveStreams)
	}

	// A second close forwards but must not double-count the stream.
	sink.Close()
	if got := engine.GetSnapshot().StreamsEnded; got != 1 {
		t.Errorf("StreamsEnded after double close = %d, want 1", got)
	}
}

func TestObservedSinkPushError(t *testing.T) {
	engine := NewEngine()
	inner := &stubSink{pushErr: errors.New("boom")}

	sink := Observe(inner, engine)
	if _, err := sink.Push(make([]byte, 10)); err == nil {
		t.Fatal("Push() error = nil, want the sink failure")
	}

	// Failed pushes release nothing.
	if got := engine.BytesReleased(); got != 0 {
		t.Errorf("BytesReleased = %d, want 0", got)
	}
	engine.StreamAborted() // the caller reports the abort

	snapshot := engine.GetSnapshot()
	if snapshot.StreamsAborted != 1 {
		t.Errorf("StreamsAborted = %d, want 1", snapshot.StreamsAborted)
	}
	if snapshot.ActiveStreams != 0 {
		t.Errorf("ActiveStreams = %d, want 0", snapshot.ActiveStreams)
	}
}

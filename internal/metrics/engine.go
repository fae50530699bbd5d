package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects and aggregates transfer metrics for throttled streams.
//
// Key features:
// - HDR histograms for accurate duration percentiles (O(1) calculation)
// - Lock-free counter updates for high concurrency
// - Point-in-time snapshots for stats endpoints and reports
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms use mutex protection.
type Engine struct {
	// Transfer durations: stream start to clean end.
	// Range: 1 microsecond to 1 hour, 3 significant figures
	transferHist   *hdrhistogram.Histogram
	transferHistMu sync.Mutex

	// Producer stalls: time spent blocked on the high-water mark.
	stallHist   *hdrhistogram.Histogram
	stallHistMu sync.Mutex

	// Atomic counters for lock-free updates
	streamsOpened  atomic.Int64
	streamsEnded   atomic.Int64
	streamsAborted atomic.Int64
	bytesReleased  atomic.Int64
	releases       atomic.Int64

	// Active stream tracking
	activeStreams atomic.Int32

	// Timing
	startTime time.Time
	startMu   sync.RWMutex

	// Configuration
	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		transferHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		stallHist:    hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		startTime:    time.Now(),
		config:       config,
	}
}

// StreamOpened records a new stream joining the link.
func (e *Engine) StreamOpened() {
	e.streamsOpened.Add(1)
	e.activeStreams.Add(1)
}

// StreamEnded records a stream that drained completely and closed.
// lifetime is the span from open to the sink close.
func (e *Engine) StreamEnded(lifetime time.Duration) {
	e.recordDuration(e.transferHist, &e.transferHistMu, lifetime)
	e.streamsEnded.Add(1)
	e.activeStreams.Add(-1)
}

// StreamAborted records a stream cut short before draining. Aborted
// streams do not enter the transfer-duration histogram; those
// percentiles describe completed transfers only.
func (e *Engine) StreamAborted() {
	e.streamsAborted.Add(1)
	e.activeStreams.Add(-1)
}

// RecordRelease records one batch of bytes handed to a sink.
func (e *Engine) RecordRelease(n int) {
	e.bytesReleased.Add(int64(n))
	e.releases.Add(1)
}

// RecordStall records time a producer spent blocked above the
// high-water mark.
func (e *Engine) RecordStall(d time.Duration) {
	e.recordDuration(e.stallHist, &e.stallHistMu, d)
}

// recordDuration clamps d to the histogram range and records it.
// NOTE: HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
func (e *Engine) recordDuration(hist *hdrhistogram.Histogram, mu *sync.Mutex, d time.Duration) {
	micros := d.Microseconds()
	if micros < e.config.HistogramMin {
		micros = e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		micros = e.config.HistogramMax
	}
	mu.Lock()
	hist.RecordValue(micros)
	mu.Unlock()
}

// ActiveStreams returns the current number of open streams.
func (e *Engine) ActiveStreams() int {
	return int(e.activeStreams.Load())
}

// BytesReleased returns the total bytes handed to sinks so far.
func (e *Engine) BytesReleased() int64 {
	return e.bytesReleased.Load()
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	transfer := statsFrom(e.transferHist, &e.transferHistMu)
	stall := statsFrom(e.stallHist, &e.stallHistMu)

	e.startMu.RLock()
	start := e.startTime
	e.startMu.RUnlock()

	elapsed := time.Since(start)
	bytes := e.bytesReleased.Load()

	throughput := 0.0
	if elapsed.Seconds() > 0 {
		throughput = float64(bytes) / elapsed.Seconds()
	}

	return &Snapshot{
		StreamsOpened:  e.streamsOpened.Load(),
		StreamsEnded:   e.streamsEnded.Load(),
		StreamsAborted: e.streamsAborted.Load(),
		ActiveStreams:  e.ActiveStreams(),
		BytesReleased:  bytes,
		Releases:       e.releases.Load(),
		Transfer:       transfer,
		Stall:          stall,
		Throughput:     throughput,
		Elapsed:        elapsed,
		StartTime:      start,
		Timestamp:      time.Now(),
	}
}

func statsFrom(hist *hdrhistogram.Histogram, mu *sync.Mutex) DurationStats {
	mu.Lock()
	defer mu.Unlock()

	if hist.TotalCount() == 0 {
		return DurationStats{}
	}
	return DurationStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// Reset resets all metrics to initial state.
func (e *Engine) Reset() {
	e.transferHistMu.Lock()
	e.transferHist.Reset()
	e.transferHistMu.Unlock()

	e.stallHistMu.Lock()
	e.stallHist.Reset()
	e.stallHistMu.Unlock()

	e.streamsOpened.Store(0)
	e.streamsEnded.Store(0)
	e.streamsAborted.Store(0)
	e.bytesReleased.Store(0)
	e.releases.Store(0)
	e.activeStreams.Store(0)

	e.startMu.Lock()
	e.startTime = time.Now()
	e.startMu.Unlock()
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	StreamsOpened  int64         `json:"streamsOpened"`
	StreamsEnded   int64         `json:"streamsEnded"`
	StreamsAborted int64         `json:"streamsAborted"`
	ActiveStreams  int           `json:"activeStreams"`
	BytesReleased  int64         `json:"bytesReleased"`
	Releases       int64         `json:"releases"`
	Transfer       DurationStats `json:"transfer"`
	Stall          DurationStats `json:"stall"`
	Throughput     float64       `json:"throughput"`
	Elapsed        time.Duration `json:"elapsed"`
	StartTime      time.Time     `json:"startTime"`
	Timestamp      time.Time     `json:"timestamp"`
}

// DurationStats contains duration statistics.
type DurationStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

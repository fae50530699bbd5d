package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wesleyorama2/slink/bandwidth"
	"github.com/wesleyorama2/slink/internal/config"
	"github.com/wesleyorama2/slink/internal/metrics"
)

// stateSkipped marks a stream that never made it onto the link, either
// because the run ended during its start delay or because the group
// refused it.
const stateSkipped = "skipped"

// Runner executes a single scenario.
//
// It coordinates:
//   - Building the shared bandwidth group from the link configuration
//   - One producer goroutine per configured stream
//   - Metrics collection across all streams
//
// Example usage:
//
//	cfg, _ := config.LoadScenario("contention.yaml")
//	runner, _ := simulate.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
//	fmt.Printf("released %d bytes\n", result.TotalReleased())
type Runner struct {
	cfg     *config.ScenarioConfig
	metrics *metrics.Engine

	mu      sync.Mutex
	running bool
}

// NewRunner validates the scenario and prepares a runner for it.
func NewRunner(cfg *config.ScenarioConfig) (*Runner, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &Runner{
		cfg:     cfg,
		metrics: metrics.NewEngine(),
	}, nil
}

// Metrics returns the snapshot of the current or most recent run.
func (r *Runner) Metrics() *metrics.Snapshot {
	return r.metrics.GetSnapshot()
}

// IsRunning returns true if the runner is currently executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run executes every stream and blocks until all of them finish, the
// scenario duration elapses, or the context is cancelled.
//
// A stream failure never fails the run; it is reported in that stream's
// result. The returned error is non-nil only when the runner could not
// start or the caller's context was cancelled.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is already running")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	group, err := bandwidth.NewGroup(r.cfg.Link.Options()...)
	if err != nil {
		return nil, fmt.Errorf("invalid link configuration: %w", err)
	}
	defer group.Shutdown()

	r.metrics.Reset()

	// The scenario duration caps the run; streams still pending when
	// it elapses are aborted.
	runCtx := ctx
	if d := r.cfg.Duration.GetDuration(0); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()

	results := make(map[string]*StreamResult, len(r.cfg.Streams))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for name, stream := range r.cfg.Streams {
		wg.Add(1)
		go func(name string, stream *config.StreamConfig) {
			defer wg.Done()

			res := r.runStream(runCtx, group, name, stream)

			resultsMu.Lock()
			results[name] = res
			resultsMu.Unlock()
		}(name, stream)
	}

	wg.Wait()

	end := time.Now()
	result := &Result{
		Name:        r.cfg.Name,
		Description: r.cfg.Description,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Streams:     results,
		Metrics:     r.metrics.GetSnapshot(),
	}

	return result, ctx.Err()
}

// runStream produces one stream's bytes through its own throttle and
// reports how the transfer went.
func (r *Runner) runStream(ctx context.Context, group *bandwidth.Group, name string, sc *config.StreamConfig) *StreamResult {
	res := &StreamResult{Name: name, State: stateSkipped}

	if d := sc.StartAfter.GetDuration(0); d > 0 {
		select {
		case <-ctx.Done():
			res.Error = ctx.Err().Error()
			return res
		case <-time.After(d):
		}
	}

	sink := metrics.Observe(discardSink{}, r.metrics)
	th, err := group.CreateThrottle(sink)
	if err != nil {
		r.metrics.StreamAborted()
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	w := bandwidth.NewWriter(ctx, th)
	pacer := NewPacer(float64(sc.ProduceRate))
	buf := make([]byte, int(sc.Chunk))

	total := int64(sc.Bytes)
	abortAt := int64(sc.AbortAfter)
	var produced int64
	var runErr error

	for produced < total {
		if abortAt > 0 && produced >= abortAt {
			break
		}

		n := int64(len(buf))
		if rem := total - produced; rem < n {
			n = rem
		}

		if err := pacer.Wait(ctx, int(n)); err != nil {
			runErr = err
			break
		}

		wrote, err := w.Write(buf[:n])
		produced += int64(wrote)
		if err != nil {
			runErr = err
			break
		}
	}

	planned := abortAt > 0 && produced >= abortAt
	if runErr == nil && !planned {
		if err := w.Close(); err != nil {
			runErr = err
		}
	}

	// Anything still active at this point did not drain cleanly:
	// a scheduled abort, a cancelled context, or a close failure.
	if th.State() == bandwidth.StateActive {
		th.Abort()
	}

	state := th.State()
	if state == bandwidth.StateAborted {
		// Aborted streams bypass the sink's close path, so the
		// observer never sees them finish.
		r.metrics.StreamAborted()
	}

	res.State = state.String()
	res.BytesProduced = produced
	res.BytesReleased = sink.Bytes()
	res.Duration = time.Since(start)
	if secs := res.Duration.Seconds(); secs > 0 {
		res.Throughput = float64(res.BytesReleased) / secs
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}

	return res
}

// discardSink accepts and drops every released chunk. The observing
// wrapper still counts what flows through it.
type discardSink struct{}

func (discardSink) Push(p []byte) (bool, error) { return true, nil }

func (discardSink) Close() error { return nil }

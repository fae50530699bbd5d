// Package simulate integration tests drive full scenarios end to end.
package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesleyorama2/slink/internal/config"
)

func linkRate(n int64) *config.ByteSize {
	r := config.ByteSize(n)
	return &r
}

// ============================================================================
// Completion Tests
// ============================================================================

func TestRunner_SingleStream(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name:        "single stream",
		Description: "One download through a throttled link",
		Link:        config.LinkConfig{Rate: linkRate(200 * 1024), Resolution: 50},
		Streams: map[string]*config.StreamConfig{
			"download": {Bytes: 40 * 1024, Chunk: 4096},
		},
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runner.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "single stream", result.Name)
	assert.True(t, result.Completed(), "Stream should have drained fully")

	stream := result.Streams["download"]
	require.NotNil(t, stream)
	assert.Equal(t, "ended", stream.State)
	assert.Equal(t, int64(40*1024), stream.BytesProduced)
	assert.Equal(t, int64(40*1024), stream.BytesReleased)
	assert.True(t, stream.Throughput > 0, "Should have measured throughput")

	// 40 KiB through a 200 KiB/s link needs ~200ms
	assert.True(t, result.Duration >= 150*time.Millisecond, "Link pacing should bound completion, took %v", result.Duration)

	assert.Equal(t, int64(1), result.Metrics.StreamsOpened)
	assert.Equal(t, int64(1), result.Metrics.StreamsEnded)
	assert.Equal(t, int64(0), result.Metrics.StreamsAborted)
	assert.Equal(t, int64(40*1024), result.Metrics.BytesReleased)
	assert.Equal(t, 0, result.Metrics.ActiveStreams)

	t.Logf("Single Stream Results:")
	t.Logf("  Duration: %v", result.Duration)
	t.Logf("  Released: %d bytes", result.TotalReleased())
	t.Logf("  Throughput: %.0f B/s", stream.Throughput)
}

func TestRunner_SharedLink(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "shared link",
		Link: config.LinkConfig{Rate: linkRate(100 * 1024), Resolution: 50},
		Streams: map[string]*config.StreamConfig{
			"alpha": {Bytes: 20 * 1024, Chunk: 2048},
			"beta":  {Bytes: 20 * 1024, Chunk: 2048},
		},
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.Completed(), "Both streams should finish")
	assert.Equal(t, int64(40*1024), result.TotalReleased())
	assert.Equal(t, int64(20*1024), result.Streams["alpha"].BytesReleased)
	assert.Equal(t, int64(20*1024), result.Streams["beta"].BytesReleased)

	// 40 KiB total through a 100 KiB/s link needs ~400ms
	assert.True(t, result.Duration >= 300*time.Millisecond, "Shared link should bound completion, took %v", result.Duration)

	assert.Equal(t, int64(2), result.Metrics.StreamsOpened)
	assert.Equal(t, int64(2), result.Metrics.StreamsEnded)

	t.Logf("Shared Link Results:")
	for _, name := range result.StreamNames() {
		s := result.Streams[name]
		t.Logf("  %s: %d bytes in %v", name, s.BytesReleased, s.Duration)
	}
}

func TestRunner_ProducerPacing(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "paced producer",
		Streams: map[string]*config.StreamConfig{
			"slow": {Bytes: 10 * 1024, Chunk: 1024, ProduceRate: 20 * 1024},
		},
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runner.Run(ctx)
	require.NoError(t, err)

	stream := result.Streams["slow"]
	require.NotNil(t, stream)
	assert.Equal(t, "ended", stream.State)
	assert.Equal(t, int64(10*1024), stream.BytesReleased)

	// 10 chunks of 1 KiB at 20 KiB/s arrive 50ms apart
	assert.True(t, result.Duration >= 400*time.Millisecond, "Producer pacing should bound completion, took %v", result.Duration)

	t.Logf("Paced Producer - Duration: %v", result.Duration)
}

// ============================================================================
// Abort and Cutoff Tests
// ============================================================================

func TestRunner_PlannedAbort(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "planned abort",
		Streams: map[string]*config.StreamConfig{
			"cut": {Bytes: 100 * 1024, Chunk: 4096, AbortAfter: 8192},
		},
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := runner.Run(ctx)
	require.NoError(t, err)

	stream := result.Streams["cut"]
	require.NotNil(t, stream)
	assert.Equal(t, "aborted", stream.State)
	assert.Empty(t, stream.Error, "A scheduled abort is not a failure")
	assert.Equal(t, int64(8192), stream.BytesProduced)
	assert.LessOrEqual(t, stream.BytesReleased, int64(8192))
	assert.False(t, result.Completed())

	assert.Equal(t, int64(1), result.Metrics.StreamsOpened)
	assert.Equal(t, int64(0), result.Metrics.StreamsEnded)
	assert.Equal(t, int64(1), result.Metrics.StreamsAborted)
	assert.Equal(t, 0, result.Metrics.ActiveStreams)
}

func TestRunner_DurationCapAbortsPendingStreams(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "capped run",
		Link: config.LinkConfig{Rate: linkRate(10 * 1024)},
		Streams: map[string]*config.StreamConfig{
			"huge": {Bytes: 1024 * 1024, Chunk: 8192},
		},
		Duration: config.Duration(150 * time.Millisecond),
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	start := time.Now()
	result, err := runner.Run(context.Background())
	elapsed := time.Since(start)

	// The cap ends the run without failing it
	require.NoError(t, err)
	assert.True(t, elapsed < 3*time.Second, "Cap should stop the run quickly, took %v", elapsed)

	stream := result.Streams["huge"]
	require.NotNil(t, stream)
	assert.Equal(t, "aborted", stream.State)
	assert.NotEmpty(t, stream.Error)
	assert.Less(t, stream.BytesReleased, int64(1024*1024))

	assert.Equal(t, int64(1), result.Metrics.StreamsAborted)

	t.Logf("Capped Run - %d of %d bytes released in %v", stream.BytesReleased, 1024*1024, result.Duration)
}

func TestRunner_StartDelayPastCapSkipsStream(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "late arrival",
		Streams: map[string]*config.StreamConfig{
			"early": {Bytes: 4096},
			"late":  {Bytes: 4096, StartAfter: config.Duration(10 * time.Second)},
		},
		Duration: config.Duration(200 * time.Millisecond),
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	early := result.Streams["early"]
	require.NotNil(t, early)
	assert.Equal(t, "ended", early.State)
	assert.Equal(t, int64(4096), early.BytesReleased)

	late := result.Streams["late"]
	require.NotNil(t, late)
	assert.Equal(t, "skipped", late.State)
	assert.NotEmpty(t, late.Error)
	assert.Equal(t, int64(0), late.BytesProduced)
	assert.Equal(t, int64(0), late.BytesReleased)

	// The skipped stream never touched the link
	assert.Equal(t, int64(1), result.Metrics.StreamsOpened)
	assert.Equal(t, int64(1), result.Metrics.StreamsEnded)
	assert.Equal(t, int64(0), result.Metrics.StreamsAborted)
}

// ============================================================================
// Cancellation and Guard Tests
// ============================================================================

func TestRunner_ContextCancellation(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "cancelled run",
		Link: config.LinkConfig{Rate: linkRate(10 * 1024)},
		Streams: map[string]*config.StreamConfig{
			"big": {Bytes: 10 * 1024 * 1024},
		},
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := runner.Run(ctx)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result, "Cancellation still yields partial results")
	assert.True(t, elapsed < 3*time.Second, "Should stop quickly after cancellation, took %v", elapsed)
	assert.Equal(t, "aborted", result.Streams["big"].State)

	t.Logf("Cancellation - stopped in %v with %d bytes released", elapsed, result.TotalReleased())
}

func TestRunner_RejectsSecondRun(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Name: "busy runner",
		Link: config.LinkConfig{Rate: linkRate(10 * 1024)},
		Streams: map[string]*config.StreamConfig{
			"big": {Bytes: 1024 * 1024},
		},
		Duration: config.Duration(400 * time.Millisecond),
	}

	runner, err := NewRunner(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = runner.Run(context.Background())
	}()

	require.Eventually(t, runner.IsRunning, time.Second, 5*time.Millisecond)

	_, err = runner.Run(context.Background())
	assert.ErrorContains(t, err, "already running")

	<-done
	assert.False(t, runner.IsRunning())
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestNewRunner_RejectsInvalidScenario(t *testing.T) {
	_, err := NewRunner(&config.ScenarioConfig{Name: "empty"})
	assert.ErrorContains(t, err, "stream")

	_, err = NewRunner(&config.ScenarioConfig{
		Name: "bad resolution",
		Link: config.LinkConfig{Resolution: 2000},
		Streams: map[string]*config.StreamConfig{
			"s": {Bytes: 1024},
		},
	})
	assert.ErrorContains(t, err, "resolution")
}

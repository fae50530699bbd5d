// Package simulate drives scripted traffic through a shared bandwidth
// group and collects per-stream outcomes.
package simulate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer schedules byte production for a simulated stream.
//
// It is a leaky bucket keyed on bytes rather than iterations: credit
// accrues continuously at the configured rate, each call to Next spends
// the credit for one chunk, and the caller sleeps until the chunk is
// fully earned. Falling behind schedule never produces a burst larger
// than the configured allowance, so output stays smooth across rate
// changes.
//
// A rate of zero or below disables pacing entirely; Next then always
// schedules for the current instant.
//
// Pacer is safe for concurrent use from multiple goroutines.
type Pacer struct {
	rate        float64 // bytes per second, <= 0 means unpaced
	lastDrip    time.Time
	accumulated float64 // earned bytes not yet spent
	maxBurst    float64 // credit allowed beyond a single chunk
	mu          sync.Mutex

	totalBytes    atomic.Int64 // total bytes scheduled
	totalWaitTime atomic.Int64 // total scheduled wait in nanoseconds
}

// NewPacer creates a pacer producing at most bytesPerSecond. Credit
// never accrues beyond the chunk being scheduled, so a stalled
// producer cannot bank a burst.
func NewPacer(bytesPerSecond float64) *Pacer {
	return &Pacer{
		rate:     bytesPerSecond,
		lastDrip: time.Now(),
	}
}

// NewPacerWithBurst creates a pacer that may bank up to maxBurst bytes
// of credit while the producer is idle and release them in a burst once
// it resumes.
func NewPacerWithBurst(bytesPerSecond, maxBurst float64) *Pacer {
	p := NewPacer(bytesPerSecond)
	if maxBurst > 0 {
		p.maxBurst = maxBurst
	}
	return p
}

// Next returns when the caller may produce the next n bytes.
//
// The returned time may be in the past if enough credit is already
// banked, in which case production should continue immediately.
//
// Thread-safe: can be called from multiple goroutines.
func (p *Pacer) Next(n int) time.Time {
	if n <= 0 {
		return time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.totalBytes.Add(int64(n))

	if p.rate <= 0 {
		p.lastDrip = now
		return now
	}

	elapsed := now.Sub(p.lastDrip).Seconds()
	// lastDrip sits in the future right after a scheduled wait.
	if elapsed < 0 {
		elapsed = 0
	}
	p.accumulated += elapsed * p.rate

	need := float64(n)
	if limit := need + p.maxBurst; p.accumulated > limit {
		p.accumulated = limit
	}

	if p.accumulated >= need {
		p.accumulated -= need
		p.lastDrip = now
		return now
	}

	deficit := need - p.accumulated
	wait := time.Duration(deficit / p.rate * float64(time.Second))
	p.accumulated = 0

	next := now.Add(wait)
	// Anchor the drip to the scheduled time so the sleeping caller
	// does not earn the same credit twice when it wakes.
	p.lastDrip = next

	p.totalWaitTime.Add(int64(wait))
	return next
}

// Wait blocks until the next n bytes may be produced.
//
// Returns nil once production may continue, or ctx.Err() if the context
// was cancelled first.
func (p *Pacer) Wait(ctx context.Context, n int) error {
	d := time.Until(p.Next(n))
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SetRate changes the production rate. Banked credit is dropped so a
// rate cut takes effect without a burst.
//
// Thread-safe: can be called while other goroutines use Wait or Next.
func (p *Pacer) SetRate(bytesPerSecond float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = bytesPerSecond
	p.accumulated = 0
	p.lastDrip = time.Now()
}

// Rate returns the current production rate in bytes per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Stats returns statistics about the pacer's operation.
func (p *Pacer) Stats() PacerStats {
	p.mu.Lock()
	rate := p.rate
	accumulated := p.accumulated
	maxBurst := p.maxBurst
	p.mu.Unlock()

	return PacerStats{
		Rate:          rate,
		Accumulated:   accumulated,
		MaxBurst:      maxBurst,
		TotalBytes:    p.totalBytes.Load(),
		TotalWaitTime: time.Duration(p.totalWaitTime.Load()),
	}
}

// Reset returns the pacer to its initial state, dropping banked credit
// and counters.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accumulated = 0
	p.lastDrip = time.Now()
	p.totalBytes.Store(0)
	p.totalWaitTime.Store(0)
}

// PacerStats contains statistics about a pacer.
type PacerStats struct {
	Rate          float64       `json:"rate"`          // Current rate in bytes/second
	Accumulated   float64       `json:"accumulated"`   // Currently banked byte credit
	MaxBurst      float64       `json:"maxBurst"`      // Credit allowance beyond one chunk
	TotalBytes    int64         `json:"totalBytes"`    // Total bytes scheduled
	TotalWaitTime time.Duration `json:"totalWaitTime"` // Total time spent waiting
}

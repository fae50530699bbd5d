package bandwidth

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
)

// State identifies a throttle's lifecycle state.
type State int32

const (
	// StateActive accepts writes and participates in tick distribution.
	StateActive State = iota

	// StateEnded is reached after End once every buffered byte has been
	// released and the sink was closed.
	StateEnded

	// StateAborted means the stream was cut short: buffered bytes were
	// discarded and nothing further is released.
	StateAborted

	// StateDestroyed means every resource was released. Terminal.
	StateDestroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateAborted:
		return "aborted"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// releaseChunk caps the slice size handed to a single Sink.Push so an
// unlimited-mode backlog is released in bounded pieces.
const releaseChunk = 64 * 1024

// Throttle paces one byte stream against its group's shared budget.
//
// The producer calls Write for each inbound chunk and End when the
// stream is complete. Bytes accumulate in a FIFO buffer; every scheduler
// tick the group authorizes an allotment and the throttle's drain worker
// releases up to that many buffered bytes, strictly in receipt order, to
// the Sink. Abort and Destroy are safe to call from any goroutine at any
// time, including from inside a Push callback.
type Throttle struct {
	id    int64
	group *Group
	sink  Sink

	// state transitions happen under mu; the atomic lets State and the
	// drain loop read it without blocking.
	state atomic.Int32

	mu        sync.Mutex
	buf       bytes.Buffer
	allot     int64
	closing   bool          // End was called; finish once the buffer drains
	suspended bool          // sink reported not-ready; waiting for Ready
	failure   error         // sink error that ended the stream
	writable  chan struct{} // lazily made; closed to wake WaitWritable

	kick chan struct{} // wakes the drain worker, capacity 1
	done chan struct{} // closed when the throttle leaves StateActive

	closeDone sync.Once
}

func newThrottle(g *Group, id int64, sink Sink) *Throttle {
	t := &Throttle{
		id:    id,
		group: g,
		sink:  sink,
		kick:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	t.state.Store(int32(StateActive))
	go t.drainLoop()
	return t
}

// ID returns the throttle's identifier, unique within its group.
func (t *Throttle) ID() int64 { return t.id }

// State returns the current lifecycle state.
func (t *Throttle) State() State { return State(t.state.Load()) }

// Pending returns the number of buffered, not yet released bytes.
func (t *Throttle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Len()
}

// Err returns the sink error that ended the stream, if any.
func (t *Throttle) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Done returns a channel that is closed once the throttle leaves
// StateActive, whether by End, Abort, Destroy or a sink failure.
func (t *Throttle) Done() <-chan struct{} { return t.done }

// Write appends a copy of p to the pending buffer. The boolean is the
// backpressure signal: false asks the producer to pause until the buffer
// drains below the group's high-water mark (WaitWritable is the blocking
// form of that wait). Writing to a throttle that is not Active fails
// with an ErrInvalidState error; when a sink failure ended the stream
// the returned error wraps it.
func (t *Throttle) Write(p []byte) (bool, error) {
	hw := t.group.highWater()

	t.mu.Lock()
	if s := t.State(); s != StateActive {
		err := t.stateErr("write", s)
		t.mu.Unlock()
		return false, err
	}
	if t.closing {
		t.mu.Unlock()
		return false, errorf(ErrInvalidState, "write after end")
	}
	t.buf.Write(p)
	ok := t.buf.Len() < hw
	t.mu.Unlock()
	return ok, nil
}

// End signals that no further writes will arrive. Once the pending
// buffer is fully drained the sink is closed and the throttle becomes
// Ended; with an already empty buffer that happens immediately instead
// of on the next tick. End is a no-op when the throttle already ended
// and fails with ErrInvalidState after Abort or Destroy.
func (t *Throttle) End() error {
	t.mu.Lock()
	switch s := t.State(); s {
	case StateActive:
	case StateEnded:
		t.mu.Unlock()
		return nil
	default:
		err := t.stateErr("end", s)
		t.mu.Unlock()
		return err
	}
	t.closing = true
	t.mu.Unlock()
	t.wake()
	return nil
}

// Abort cuts the stream short: pending bytes are discarded, no further
// bytes are released, and the throttle leaves the group so the remaining
// members' shares grow starting at the very next tick. The sink is not
// closed; its teardown belongs to its owner. Idempotent.
func (t *Throttle) Abort() {
	t.abort(nil)
}

func (t *Throttle) abort(cause error) {
	t.mu.Lock()
	if t.State() != StateActive {
		t.mu.Unlock()
		return
	}
	t.state.Store(int32(StateAborted))
	if cause != nil {
		t.failure = cause
	}
	t.buf.Reset()
	t.allot = 0
	t.wakeWritableLocked()
	t.mu.Unlock()

	t.group.deregister(t)
	t.closeDone.Do(func() { close(t.done) })
}

// Destroy releases every resource from any state and removes the
// throttle from its group when it is still registered. Idempotent.
func (t *Throttle) Destroy() {
	t.mu.Lock()
	s := t.State()
	if s == StateDestroyed {
		t.mu.Unlock()
		return
	}
	wasActive := s == StateActive
	t.state.Store(int32(StateDestroyed))
	t.buf.Reset()
	t.allot = 0
	t.wakeWritableLocked()
	t.mu.Unlock()

	if wasActive {
		t.group.deregister(t)
	}
	t.closeDone.Do(func() { close(t.done) })
}

// Ready is the sink's notify-when-ready callback: after Push returned
// ok=false, Ready resumes the drain. The resumed drain stays within
// whatever remains of the current tick's allotment.
func (t *Throttle) Ready() {
	t.mu.Lock()
	t.suspended = false
	t.mu.Unlock()
	t.wake()
}

// WaitWritable blocks until the pending buffer is below the group's
// high-water mark, returning early with an error when the throttle
// leaves StateActive or ctx is done.
func (t *Throttle) WaitWritable(ctx context.Context) error {
	for {
		hw := t.group.highWater()

		t.mu.Lock()
		if s := t.State(); s != StateActive {
			err := t.stateErr("wait", s)
			t.mu.Unlock()
			return err
		}
		if t.closing {
			t.mu.Unlock()
			return errorf(ErrInvalidState, "wait after end")
		}
		if t.buf.Len() < hw {
			t.mu.Unlock()
			return nil
		}
		if t.writable == nil {
			t.writable = make(chan struct{})
		}
		ch := t.writable
		t.mu.Unlock()

		select {
		case <-ch:
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// grant overwrites the throttle's allotment for the new tick and wakes
// the drain worker. backlog selects unlimited mode, where the full
// pending buffer is authorized instead of a byte count.
func (t *Throttle) grant(n int64, backlog bool) {
	t.mu.Lock()
	if t.State() != StateActive {
		t.mu.Unlock()
		return
	}
	if backlog {
		t.allot = int64(t.buf.Len())
	} else {
		t.allot = n
	}
	t.mu.Unlock()
	t.wake()
}

// wake nudges the drain worker; the buffered channel coalesces repeats.
func (t *Throttle) wake() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// wakeWritableLocked releases every WaitWritable waiter. Callers hold
// mu; waiters re-check the buffer themselves.
func (t *Throttle) wakeWritableLocked() {
	if t.writable != nil {
		close(t.writable)
		t.writable = nil
	}
}

func (t *Throttle) stateErr(op string, s State) error {
	if t.failure != nil {
		return wrapErr(ErrInvalidState, t.failure, op+" on "+s.String()+" throttle")
	}
	return errorf(ErrInvalidState, "%s on %s throttle", op, s)
}

func (t *Throttle) drainLoop() {
	for {
		select {
		case <-t.kick:
			t.drain()
		case <-t.done:
			return
		}
	}
}

// drain releases buffered bytes until the allotment or the buffer is
// exhausted, the sink applies backpressure, or the stream leaves
// StateActive. Push runs with no locks held, so a slow sink stalls only
// its own throttle, never the group's tick loop.
func (t *Throttle) drain() {
	for {
		t.mu.Lock()
		if t.State() != StateActive || t.suspended {
			t.mu.Unlock()
			return
		}
		n := t.allot
		if l := int64(t.buf.Len()); l < n {
			n = l
		}
		if n > releaseChunk {
			n = releaseChunk
		}
		if n <= 0 {
			finish := t.closing && t.buf.Len() == 0
			t.mu.Unlock()
			if finish {
				t.finish()
			}
			return
		}
		p := make([]byte, n)
		t.buf.Read(p)
		t.allot -= n
		t.wakeWritableLocked()
		t.mu.Unlock()

		ok, err := t.sink.Push(p)
		if err != nil {
			t.abort(wrapErr(ErrSinkFailed, err, "sink push failed"))
			return
		}
		if !ok {
			t.mu.Lock()
			t.suspended = true
			t.mu.Unlock()
			return
		}
	}
}

// finish completes the end-of-stream path: transition to Ended, leave
// the group, close the sink. A close failure is recorded and surfaced
// through Err; there is nothing left to discard at that point.
func (t *Throttle) finish() {
	t.mu.Lock()
	if t.State() != StateActive || !t.closing || t.buf.Len() != 0 {
		t.mu.Unlock()
		return
	}
	t.state.Store(int32(StateEnded))
	t.wakeWritableLocked()
	t.mu.Unlock()

	t.group.deregister(t)
	if err := t.sink.Close(); err != nil {
		t.mu.Lock()
		if t.failure == nil {
			t.failure = wrapErr(ErrSinkFailed, err, "sink close failed")
		}
		t.mu.Unlock()
	}
	t.closeDone.Do(func() { close(t.done) })
}

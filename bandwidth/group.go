package bandwidth

import (
	"sync"
	"sync/atomic"
	"time"
)

// Group shares one bytes-per-second budget among its member throttles.
//
// Every scheduler tick the group slices a per-tick grant from the
// per-second budget, splits it equally among the active members and
// wakes their drain workers. Membership changes take effect at the very
// next tick: a leaving member enlarges the remaining shares immediately
// because the divisor shrank. The scheduler runs only while the group
// has members.
//
// All methods are safe for concurrent use.
type Group struct {
	mu      sync.Mutex
	cfg     Config
	members map[int64]*Throttle
	acc     int64         // undistributed budget remainder, always < Resolution
	stopCh  chan struct{} // non-nil while the scheduler goroutine runs
	closed  bool

	nextID atomic.Int64
}

// NewGroup creates a group holding DefaultConfig overlaid with opts.
// The scheduler starts lazily with the first member. Invalid options
// fail with an ErrInvalidConfig error.
func NewGroup(opts ...Option) (*Group, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Group{
		cfg:     cfg,
		members: make(map[int64]*Throttle),
	}, nil
}

// Configure overlays opts onto the current configuration, validates the
// result and swaps it in atomically; a failed validation leaves the old
// configuration fully in place. New values take effect on the next
// tick, never resetting in-flight tick progress. A rate change resets
// the budget remainder carried between ticks; a resolution change is
// picked up by the running scheduler after its next fire.
func (g *Group) Configure(opts ...Option) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cfg := g.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.BytesPerSecond != g.cfg.BytesPerSecond {
		g.acc = 0
	}
	g.cfg = cfg
	return nil
}

// Config returns a copy of the current configuration.
func (g *Group) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// MemberCount returns the number of currently registered throttles.
func (g *Group) MemberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// CreateThrottle registers a new Active throttle draining into sink.
// Registering the first member starts the scheduler.
func (g *Group) CreateThrottle(sink Sink) (*Throttle, error) {
	if sink == nil {
		return nil, errorf(ErrInvalidConfig, "sink must not be nil")
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, errorf(ErrInvalidState, "group is shut down")
	}
	t := newThrottle(g, g.nextID.Add(1), sink)
	g.members[t.id] = t
	if len(g.members) == 1 {
		g.startSchedulerLocked()
	}
	g.mu.Unlock()
	return t, nil
}

// Shutdown destroys every member and permanently closes the group;
// later CreateThrottle calls fail with an ErrInvalidState error.
// Intended for process teardown.
func (g *Group) Shutdown() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	snapshot := make([]*Throttle, 0, len(g.members))
	for _, t := range g.members {
		snapshot = append(snapshot, t)
	}
	g.mu.Unlock()

	for _, t := range snapshot {
		t.Destroy()
	}
}

// deregister removes t from the member set, stopping the scheduler when
// the set becomes empty. Called by throttles leaving StateActive; never
// called with the throttle's lock held.
func (g *Group) deregister(t *Throttle) {
	g.mu.Lock()
	if _, ok := g.members[t.id]; ok {
		delete(g.members, t.id)
		if len(g.members) == 0 {
			g.stopSchedulerLocked()
		}
	}
	g.mu.Unlock()
}

// highWater returns the current producer backpressure threshold.
func (g *Group) highWater() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.HighWater
}

func (g *Group) startSchedulerLocked() {
	if g.stopCh != nil || g.closed {
		return
	}
	stop := make(chan struct{})
	g.stopCh = stop
	go g.runScheduler(g.cfg.tickPeriod(), stop)
}

func (g *Group) stopSchedulerLocked() {
	if g.stopCh != nil {
		close(g.stopCh)
		g.stopCh = nil
	}
}

// runScheduler fires ticks at the configured resolution until stopped,
// following resolution changes after each fire. time.Ticker schedules
// against the wall clock and drops ticks rather than queueing them, so
// lateness never compounds.
func (g *Group) runScheduler(period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.tick()
			if p := g.Config().tickPeriod(); p != period {
				period = p
				ticker.Reset(p)
			}
		}
	}
}

// tick performs one distribution round. The member set is snapshotted
// under the group lock and the lock released before any member is
// touched, so deregistration during the round can never corrupt the
// iteration and the group and throttle locks are never held together.
func (g *Group) tick() {
	g.mu.Lock()
	if len(g.members) == 0 {
		g.mu.Unlock()
		return
	}
	cfg := g.cfg
	snapshot := make([]*Throttle, 0, len(g.members))
	for _, t := range g.members {
		snapshot = append(snapshot, t)
	}
	var share int64
	if !cfg.unlimited() {
		// Integer slicing with remainder carry: over Resolution ticks
		// the grants sum to exactly BytesPerSecond. Each member's
		// unused share is still forfeited at the next grant.
		g.acc += cfg.BytesPerSecond
		grant := g.acc / int64(cfg.Resolution)
		g.acc -= grant * int64(cfg.Resolution)
		share = grant / int64(len(snapshot))
	}
	g.mu.Unlock()

	for _, t := range snapshot {
		t.grant(share, cfg.unlimited())
	}
}

package bandwidth

import (
	"math"
	"time"
)

// Unlimited disables throttling when used as the bytes-per-second rate.
const Unlimited int64 = math.MaxInt64

const (
	// DefaultResolution is the scheduler tick rate used when no
	// WithResolution option is given.
	DefaultResolution = 40

	// DefaultHighWater is the buffered byte count above which Write
	// signals producer backpressure when no WithHighWater option is
	// given.
	DefaultHighWater = 16 * 1024

	// maxResolution bounds the tick rate: the scheduler does not do
	// sub-millisecond ticking.
	maxResolution = 1000
)

// Config holds the throughput budget and scheduling parameters of a
// Group. Values are set through Options and are always valid once a
// group holds them; an invalid reconfiguration is rejected whole.
type Config struct {
	// BytesPerSecond is the combined budget shared by every member of
	// the group. Unlimited disables throttling; 0 freezes the link so
	// buffered bytes stay queued until the rate is raised again.
	BytesPerSecond int64 `json:"bytesPerSecond" yaml:"bytesPerSecond"`

	// Resolution is the number of scheduler ticks per second. Higher
	// values smooth the release pattern at the cost of more wakeups.
	Resolution int `json:"resolution" yaml:"resolution"`

	// HighWater is the per-throttle buffered byte count at which Write
	// asks the producer to pause. It shapes producer backpressure only
	// and never enters the budget math.
	HighWater int `json:"highWater" yaml:"highWater"`
}

// DefaultConfig returns the configuration used when no options are
// given: an unlimited rate at 40 ticks per second.
func DefaultConfig() Config {
	return Config{
		BytesPerSecond: Unlimited,
		Resolution:     DefaultResolution,
		HighWater:      DefaultHighWater,
	}
}

// Validate checks every field and returns an ErrInvalidConfig error
// naming the first offending one.
func (c Config) Validate() error {
	if c.BytesPerSecond < 0 {
		return errorf(ErrInvalidConfig, "bytesPerSecond must be >= 0, got %d", c.BytesPerSecond)
	}
	if c.Resolution <= 0 {
		return errorf(ErrInvalidConfig, "resolution must be > 0, got %d", c.Resolution)
	}
	if c.Resolution > maxResolution {
		return errorf(ErrInvalidConfig, "resolution must be <= %d, got %d", maxResolution, c.Resolution)
	}
	if c.HighWater <= 0 {
		return errorf(ErrInvalidConfig, "highWater must be > 0, got %d", c.HighWater)
	}
	return nil
}

// unlimited reports whether the budget disables throttling entirely.
func (c Config) unlimited() bool { return c.BytesPerSecond == Unlimited }

// tickPeriod returns the scheduler period for the configured resolution.
func (c Config) tickPeriod() time.Duration {
	return time.Second / time.Duration(c.Resolution)
}

// Option adjusts a Config during NewGroup or Configure. Options are the
// partial-configuration mechanism: fields without an option keep their
// current value.
type Option func(*Config)

// WithRate sets the shared budget in bytes per second. Use Unlimited to
// disable throttling and 0 to freeze the link.
func WithRate(bytesPerSecond int64) Option {
	return func(c *Config) { c.BytesPerSecond = bytesPerSecond }
}

// WithResolution sets the scheduler tick rate in ticks per second.
func WithResolution(ticksPerSecond int) Option {
	return func(c *Config) { c.Resolution = ticksPerSecond }
}

// WithHighWater sets the buffered byte count above which Write signals
// the producer to pause.
func WithHighWater(bytes int) Option {
	return func(c *Config) { c.HighWater = bytes }
}

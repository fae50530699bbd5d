// Package config provides scenario file parsing and validation for
// simulation runs.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wesleyorama2/slink/bandwidth"
)

// ScenarioConfig is the root configuration for a simulation run.
//
// Example YAML:
//
//	name: "Two backups share a 1 MiB/s uplink"
//	link:
//	  rate: 1 MiB
//	  resolution: 40
//	  highWater: 64 KiB
//	streams:
//	  nightly-dump:
//	    bytes: 10 MiB
//	    chunk: 32 KiB
//	  photo-sync:
//	    bytes: 4 MiB
//	    startAfter: 2s
type ScenarioConfig struct {
	// Name of the scenario (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the scenario (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Link configures the shared bandwidth budget
	Link LinkConfig `json:"link" yaml:"link"`

	// Streams defines the concurrent transfers sharing the link
	Streams map[string]*StreamConfig `json:"streams" yaml:"streams"`

	// Duration is an optional wall-clock cap for the whole run
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// LinkConfig configures the shared link the streams compete for.
type LinkConfig struct {
	// Rate is the per-second byte budget shared by all streams.
	// Accepts sizes like "1 MiB" or "512000", the string "unlimited",
	// or 0 to freeze the link. Omitted means unlimited.
	Rate *ByteSize `json:"rate,omitempty" yaml:"rate,omitempty"`

	// Resolution is the number of distribution ticks per second
	Resolution int `json:"resolution,omitempty" yaml:"resolution,omitempty"`

	// HighWater is the per-stream buffer level that signals producers
	// to pause
	HighWater ByteSize `json:"highWater,omitempty" yaml:"highWater,omitempty"`
}

// StreamConfig defines a single simulated transfer.
type StreamConfig struct {
	// Bytes is the total payload the producer writes
	Bytes ByteSize `json:"bytes" yaml:"bytes"`

	// Chunk is the producer's write size (default: 32 KiB)
	Chunk ByteSize `json:"chunk,omitempty" yaml:"chunk,omitempty"`

	// ProduceRate caps the producer's speed in bytes per second.
	// 0 means the producer writes as fast as the link accepts.
	ProduceRate ByteSize `json:"produceRate,omitempty" yaml:"produceRate,omitempty"`

	// StartAfter delays the stream's arrival on the link
	StartAfter Duration `json:"startAfter,omitempty" yaml:"startAfter,omitempty"`

	// AbortAfter cuts the stream short once this many bytes were
	// produced. 0 disables the abort.
	AbortAfter ByteSize `json:"abortAfter,omitempty" yaml:"abortAfter,omitempty"`
}

// DefaultChunk is the producer write size applied when a stream omits
// chunk.
const DefaultChunk = 32 * 1024

// Options returns the bandwidth group options declared by the link
// section. ApplyDefaults must have run first so every field is set.
func (l *LinkConfig) Options() []bandwidth.Option {
	rate := bandwidth.Unlimited
	if l.Rate != nil {
		rate = int64(*l.Rate)
	}
	return []bandwidth.Option{
		bandwidth.WithRate(rate),
		bandwidth.WithResolution(l.Resolution),
		bandwidth.WithHighWater(int(l.HighWater)),
	}
}

// ByteSize is a byte count that can be unmarshaled from JSON/YAML
// strings like "1 MiB" or "512KB", plain integers, or the string
// "unlimited".
type ByteSize int64

// ParseByteSize parses a human-readable size string.
func ParseByteSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "unlimited") {
		return bandwidth.Unlimited, nil
	}
	n, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(n), nil
}

// String returns the size in human-readable form.
func (b ByteSize) String() string {
	if int64(b) == bandwidth.Unlimited {
		return "unlimited"
	}
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	if int64(b) == bandwidth.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(int64(b), 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*b = 0
		return nil
	}
	n, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	if int64(b) == bandwidth.Unlimited {
		return "unlimited", nil
	}
	return int64(b), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		n, err := ParseByteSize(v)
		if err != nil {
			return err
		}
		*b = ByteSize(n)
	case int:
		*b = ByteSize(v)
	case int64:
		*b = ByteSize(v)
	case uint64:
		if v > math.MaxInt64 {
			return fmt.Errorf("size %d overflows", v)
		}
		*b = ByteSize(v)
	case float64:
		if v != math.Trunc(v) {
			return fmt.Errorf("size must be a whole number, got %v", v)
		}
		*b = ByteSize(int64(v))
	default:
		return fmt.Errorf("cannot parse %T as a size", raw)
	}
	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML
// strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

package simulate

import (
	"sort"
	"time"

	"github.com/wesleyorama2/slink/internal/metrics"
)

// Result contains the complete outcome of a scenario run.
type Result struct {
	// Scenario metadata
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	// Per-stream outcomes keyed by stream name
	Streams map[string]*StreamResult `json:"streams"`

	// Aggregated transfer metrics across all streams
	Metrics *metrics.Snapshot `json:"metrics"`
}

// StreamResult describes how a single stream fared.
type StreamResult struct {
	Name          string        `json:"name"`
	State         string        `json:"state"`
	BytesProduced int64         `json:"bytesProduced"`
	BytesReleased int64         `json:"bytesReleased"`
	Duration      time.Duration `json:"duration"`
	Throughput    float64       `json:"throughput"` // released bytes per second
	Error         string        `json:"error,omitempty"`
}

// StreamNames returns the stream names in sorted order for stable
// iteration.
func (r *Result) StreamNames() []string {
	names := make([]string, 0, len(r.Streams))
	for name := range r.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalProduced sums the bytes every producer wrote into its throttle.
func (r *Result) TotalProduced() int64 {
	var total int64
	for _, s := range r.Streams {
		total += s.BytesProduced
	}
	return total
}

// TotalReleased sums the bytes every stream pushed downstream.
func (r *Result) TotalReleased() int64 {
	var total int64
	for _, s := range r.Streams {
		total += s.BytesReleased
	}
	return total
}

// Completed reports whether every stream drained fully and ended.
func (r *Result) Completed() bool {
	for _, s := range r.Streams {
		if s.State != "ended" {
			return false
		}
	}
	return true
}

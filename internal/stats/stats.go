// Package stats aggregates run counters. It observes every pipeline
// stage through discrete report events and never influences outcomes.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/subdub/subdub/internal/observability"
)

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Total      int
	Generated  int
	Cached     int
	Resumed    int
	Empty      int
	Failed     int
	Overlaps   int
	LateStarts int

	TargetDuration   time.Duration
	AchievedDuration time.Duration
}

// MatchAccuracy reports how closely the achieved duration matches the
// target: 1 − |achieved − target| / target. A zero target matches only
// a zero achieved duration.
func (s Snapshot) MatchAccuracy() float64 {
	if s.TargetDuration <= 0 {
		if s.AchievedDuration == 0 {
			return 1.0
		}
		return 0.0
	}
	diff := math.Abs(s.AchievedDuration.Seconds() - s.TargetDuration.Seconds())
	acc := 1.0 - diff/s.TargetDuration.Seconds()
	if acc < 0 {
		return 0.0
	}
	return acc
}

// Collector accumulates run counters from concurrent reporters. Each
// event is also mirrored into the Prometheus metrics.
type Collector struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewCollector creates a collector for a run over total cues with the
// given target duration.
func NewCollector(total int, target time.Duration) *Collector {
	return &Collector{snap: Snapshot{Total: total, TargetDuration: target}}
}

// Generated reports a cue whose audio came from a fresh synthesis call.
func (c *Collector) Generated() {
	c.add(func(s *Snapshot) { s.Generated++ })
	observability.RecordSegment("generated")
}

// Cached reports a cue served from the text cache.
func (c *Collector) Cached() {
	c.add(func(s *Snapshot) { s.Cached++ })
	observability.RecordSegment("cached")
}

// Resumed reports a cue loaded from a previous run's segment file.
func (c *Collector) Resumed() {
	c.add(func(s *Snapshot) { s.Resumed++ })
	observability.RecordSegment("resumed")
}

// Empty reports a cue with no text to speak.
func (c *Collector) Empty() {
	c.add(func(s *Snapshot) { s.Empty++ })
	observability.RecordSegment("empty")
}

// Failed reports a cue that fell back to silence after synthesis
// exhausted its retries.
func (c *Collector) Failed() {
	c.add(func(s *Snapshot) { s.Failed++ })
	observability.RecordSegment("failed")
}

// Overlap reports a cue whose nominal start preceded already-placed audio.
func (c *Collector) Overlap() {
	c.add(func(s *Snapshot) { s.Overlaps++ })
	observability.RecordOverlap()
}

// LateStart reports a cue that needed more than the maximum speed-up.
func (c *Collector) LateStart() {
	c.add(func(s *Snapshot) { s.LateStarts++ })
	observability.RecordLateStart()
}

// SetAchieved records the final output duration.
func (c *Collector) SetAchieved(d time.Duration) {
	c.add(func(s *Snapshot) { s.AchievedDuration = d })
	observability.RecordAudioProduced(d)
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Collector) add(f func(*Snapshot)) {
	c.mu.Lock()
	f(&c.snap)
	c.mu.Unlock()
}

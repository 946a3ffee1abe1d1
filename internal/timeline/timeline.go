package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cue is one subtitle entry: the time slot its speech must occupy in
// the final track, and the text to speak. Immutable once the timeline
// is built.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration returns the nominal slot length of the cue.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// NormalizedText collapses internal line breaks and surrounding
// whitespace into a single spoken line. This is also the identity used
// for cache keys, so two cues that read the same share one synthesis.
func (c Cue) NormalizedText() string {
	return strings.Join(strings.Fields(c.Text), " ")
}

// IsEmpty reports whether the cue has nothing to speak.
func (c Cue) IsEmpty() bool {
	return c.NormalizedText() == ""
}

// Timeline is an immutable ordered list of cues. Cues are sorted by
// start time and reindexed contiguously from zero; nominal time ranges
// may still overlap each other.
type Timeline struct {
	cues []Cue
}

// New validates and orders cues into a timeline. Each cue must have
// start < end. Input order is preserved for cues with equal starts.
func New(cues []Cue) (*Timeline, error) {
	if len(cues) == 0 {
		return nil, fmt.Errorf("timeline has no cues")
	}

	owned := make([]Cue, len(cues))
	copy(owned, cues)

	for _, c := range owned {
		if c.Start < 0 {
			return nil, fmt.Errorf("cue %d: negative start %v", c.Index, c.Start)
		}
		if c.Start >= c.End {
			return nil, fmt.Errorf("cue %d: start %v is not before end %v", c.Index, c.Start, c.End)
		}
	}

	sort.SliceStable(owned, func(i, j int) bool { return owned[i].Start < owned[j].Start })
	for i := range owned {
		owned[i].Index = i
	}

	return &Timeline{cues: owned}, nil
}

// Len returns the number of cues.
func (t *Timeline) Len() int {
	return len(t.cues)
}

// Cues returns the ordered cues. The returned slice is shared; callers
// must treat it as read-only.
func (t *Timeline) Cues() []Cue {
	return t.cues
}

// End returns the nominal end of the last-ending cue.
func (t *Timeline) End() time.Duration {
	var end time.Duration
	for _, c := range t.cues {
		if c.End > end {
			end = c.End
		}
	}
	return end
}

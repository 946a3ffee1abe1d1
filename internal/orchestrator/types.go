package orchestrator

import (
	"github.com/subdub/subdub/internal/audio"
	"github.com/subdub/subdub/internal/timeline"
)

// Outcome classifies how a cue's audio came to be.
type Outcome string

const (
	// OutcomeGenerated means the audio was synthesized in this run.
	OutcomeGenerated Outcome = "generated"
	// OutcomeCached means the audio was reused from the in-run cache
	// for a repeated text.
	OutcomeCached Outcome = "cached"
	// OutcomeResumed means the segment file of a previous run was
	// loaded instead of re-synthesizing.
	OutcomeResumed Outcome = "resumed"
	// OutcomeEmpty means the cue had no speakable text.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means synthesis exhausted its retries; Audio holds
	// slot-length silence so the timeline stays intact.
	OutcomeFailed Outcome = "failed"
)

// Result carries one cue's audio out of the orchestrator. Err is only
// set for OutcomeFailed and records the final synthesis error.
type Result struct {
	Cue     timeline.Cue
	Audio   *audio.Buffer
	Outcome Outcome
	Err     error
}
